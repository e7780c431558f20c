package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Disk stores blobs under a local directory and signs download URLs with an
// HMAC over key and expiry, so links cannot be forged or extended.
type Disk struct {
	root    string
	baseURL string
	secret  []byte
}

// NewDisk creates the root directory if needed. baseURL is the public prefix
// download URLs are built on, e.g. "/files".
func NewDisk(root, baseURL, secret string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{root: root, baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}, nil
}

func (d *Disk) Save(_ context.Context, roomID, fileName, contentType string, r io.Reader, size int64) (Stored, error) {
	key := roomID + "/" + uuid.NewString() + sanitizeExt(fileName)

	dir := filepath.Join(d.root, roomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create room dir: %w", err)
	}

	path := filepath.Join(d.root, filepath.FromSlash(key))
	f, err := os.Create(path)
	if err != nil {
		return Stored{}, fmt.Errorf("create blob: %w", err)
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Stored{}, fmt.Errorf("write blob: %w", err)
	}
	if size > 0 && written != size {
		os.Remove(path)
		return Stored{}, fmt.Errorf("short write: got %d of %d bytes", written, size)
	}

	expiry := time.Now().Add(SignedURLTTL).Unix()
	url := fmt.Sprintf("%s/%s?exp=%d&sig=%s", d.baseURL, key, expiry, d.sign(key, strconv.FormatInt(expiry, 10)))

	return Stored{
		Key:         key,
		URL:         url,
		Name:        fileName,
		ContentType: contentType,
		Size:        written,
	}, nil
}

func (d *Disk) Open(key string) (io.ReadSeekCloser, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(d.root, clean))
}

func (d *Disk) VerifyURL(key, expiry, signature string) bool {
	exp, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return false
	}
	expected := d.sign(key, expiry)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (d *Disk) sign(key, expiry string) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(expiry))
	return hex.EncodeToString(mac.Sum(nil))
}

func sanitizeExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, r := range ext {
		if r != '.' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
