package bridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Storj/core/crypto"
)

// Contact mirrors the bridge's public contact listing entry.
type Contact struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	NodeID   string `json:"nodeID"`
	LastSeen string `json:"lastSeen"`
}

// Contacts lists known contacts known to the bridge.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	resp, err := c.do(ctx, http.MethodGet, "/contacts", nil)
	if err != nil {
		return nil, err
	}
	var out []Contact
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Contact fetches one contact's record by NodeID.
func (c *Client) Contact(ctx context.Context, nodeID crypto.Hash) (*Contact, error) {
	resp, err := c.do(ctx, http.MethodGet, "/contacts/"+nodeID.String(), nil)
	if err != nil {
		return nil, err
	}
	var out Contact
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser registers a new bridge account.
func (c *Client) CreateUser(ctx context.Context, email, password string) error {
	body, err := encodeJSON(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/users", body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// Key is a registered public key on a bridge account.
type Key struct {
	ID  string `json:"id"`
	Key string `json:"key"` // hex-encoded compressed pubkey
}

// ListKeys returns the account's registered public keys.
func (c *Client) ListKeys(ctx context.Context) ([]Key, error) {
	resp, err := c.do(ctx, http.MethodGet, "/keys", nil)
	if err != nil {
		return nil, err
	}
	var out []Key
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddKey registers pubkey (hex compressed) to the account.
func (c *Client) AddKey(ctx context.Context, pubkeyHex string) (*Key, error) {
	body, err := encodeJSON(map[string]string{"key": pubkeyHex})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/keys", body)
	if err != nil {
		return nil, err
	}
	var out Key
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteKey removes a registered key by ID.
func (c *Client) DeleteKey(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/keys/"+id, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// Bucket is a renter-owned grouping of files on the bridge.
type Bucket struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateBucket creates a new bucket named name.
func (c *Client) CreateBucket(ctx context.Context, name string) (*Bucket, error) {
	body, err := encodeJSON(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/buckets", body)
	if err != nil {
		return nil, err
	}
	var out Bucket
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBuckets lists the account's buckets.
func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	resp, err := c.do(ctx, http.MethodGet, "/buckets", nil)
	if err != nil {
		return nil, err
	}
	var out []Bucket
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBucket removes a bucket by ID.
func (c *Client) DeleteBucket(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/buckets/"+id, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// RenameBucket patches a bucket's name.
func (c *Client) RenameBucket(ctx context.Context, id, name string) error {
	body, err := encodeJSON(map[string]string{"name": name})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPatch, "/buckets/"+id, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// BucketToken is a short-lived credential for a PUSH or PULL against a
// bucket's files.
type BucketToken struct {
	Token     string `json:"token"`
	Operation string `json:"operation"`
}

// CreateBucketToken requests a push/pull token scoped to bucketID.
func (c *Client) CreateBucketToken(ctx context.Context, bucketID, operation string) (*BucketToken, error) {
	body, err := encodeJSON(map[string]string{"operation": operation})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/buckets/%s/tokens", bucketID), body)
	if err != nil {
		return nil, err
	}
	var out BucketToken
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMirror requests the bridge schedule a shard mirror for bucketID.
func (c *Client) CreateMirror(ctx context.Context, bucketID string, shardHash crypto.Hash) error {
	body, err := encodeJSON(map[string]string{"shardHash": shardHash.String()})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/buckets/%s/mirrors", bucketID), body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// File is a bridge file entry within a bucket.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ListFiles lists every file in bucketID.
func (c *Client) ListFiles(ctx context.Context, bucketID string) ([]File, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/buckets/%s/files", bucketID), nil)
	if err != nil {
		return nil, err
	}
	var out []File
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// File fetches one file's metadata.
func (c *Client) File(ctx context.Context, bucketID, fileID string) (*File, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/buckets/%s/files/%s", bucketID, fileID), nil)
	if err != nil {
		return nil, err
	}
	var out File
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Frame is a renter-side grouping of shards being prepared for a single
// file-entry finalisation at the bridge.
type Frame struct {
	ID string `json:"id"`
}

// CreateFrame starts a new frame.
func (c *Client) CreateFrame(ctx context.Context) (*Frame, error) {
	resp, err := c.do(ctx, http.MethodPost, "/frames", nil)
	if err != nil {
		return nil, err
	}
	var out Frame
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFrames lists the account's in-progress frames.
func (c *Client) ListFrames(ctx context.Context) ([]Frame, error) {
	resp, err := c.do(ctx, http.MethodGet, "/frames", nil)
	if err != nil {
		return nil, err
	}
	var out []Frame
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteFrame discards an in-progress frame.
func (c *Client) DeleteFrame(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/frames/"+id, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// AddShardToFrame records a negotiated shard (hash, farmer) against
// frameID.
func (c *Client) AddShardToFrame(ctx context.Context, frameID string, shardHash crypto.Hash, farmerID crypto.Hash) error {
	body, err := encodeJSON(map[string]string{
		"hash":   shardHash.String(),
		"farmer": farmerID.String(),
	})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPut, "/frames/"+frameID, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}
