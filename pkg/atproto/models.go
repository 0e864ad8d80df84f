package atproto

import "encoding/json"

// ResolveHandleResponse is the body of com.atproto.identity.resolveHandle
type ResolveHandleResponse struct {
	DID string `json:"did"`
}

// ListRecordsParams selects one page of a repo collection
type ListRecordsParams struct {
	Repo       string
	Collection string
	Limit      int
	Cursor     string
}

// ListRecordsResponse is the body of com.atproto.repo.listRecords.
// An empty Cursor marks the last page.
type ListRecordsResponse struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor,omitempty"`
}

// Record is one raw repository record
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid"`
	Value json.RawMessage `json:"value"`
}

// Post decodes the record value as a feed post
func (r Record) Post() (*PostRecord, error) {
	var post PostRecord
	if err := json.Unmarshal(r.Value, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// PostRecord holds the app.bsky.feed.post fields the exporter reads
type PostRecord struct {
	Type      string `json:"$type"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	Embed     *Embed `json:"embed,omitempty"`
}

// Embed is a post embed. Only image embeds carry Images.
type Embed struct {
	Type   string       `json:"$type"`
	Images []ImageEmbed `json:"images,omitempty"`
}

// ImageEmbed is one image of an app.bsky.embed.images embed
type ImageEmbed struct {
	Alt   string `json:"alt"`
	Image Blob   `json:"image"`
}

// Blob references uploaded content. Current records carry ref.$link,
// legacy records carry a bare cid.
type Blob struct {
	Type      string   `json:"$type,omitempty"`
	Ref       *BlobRef `json:"ref,omitempty"`
	LegacyCID string   `json:"cid,omitempty"`
	MimeType  string   `json:"mimeType,omitempty"`
	Size      int64    `json:"size,omitempty"`
}

// BlobRef is the CID link of a blob
type BlobRef struct {
	Link string `json:"$link"`
}

// CID returns the content identifier of the blob in either encoding
func (b Blob) CID() string {
	if b.Ref != nil && b.Ref.Link != "" {
		return b.Ref.Link
	}
	return b.LegacyCID
}

// XRPCErrorBody is the error payload XRPC servers return with 4xx/5xx
type XRPCErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
