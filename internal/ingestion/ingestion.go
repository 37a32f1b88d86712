// Package ingestion normalizes multipart, zip, and JSON-stream submissions
// into a canonical project.Project (C8), using Gin's c.MultipartForm() as
// the request boundary; zip extraction uses stdlib archive/zip, since no
// third-party zip library is a better fit here.
package ingestion

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/tachyontex/tachyon-tex/internal/project"
)

// Limits bounds a single ingestion call.
type Limits struct {
	MaxDecodedBytes  int64
	MaxExpansionRate int64 // zip bomb cap: decoded / compressed
}

// DefaultLimits caps decoded size at maxProjectSizeMB MiB (the
// MAX_PROJECT_SIZE_MB setting, default 32) and applies a 10x zip expansion
// cap.
func DefaultLimits(maxProjectSizeMB int64) Limits {
	return Limits{
		MaxDecodedBytes:  maxProjectSizeMB * 1024 * 1024,
		MaxExpansionRate: 10,
	}
}

// normalizePath enforces the path invariants for a submitted file name:
// relative, forward slashes, no ".." segments.
func normalizePath(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(clean) {
		return "", project.Wrap(project.ErrInvalidPath, "absolute path %q", name)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", project.Wrap(project.ErrInvalidPath, "path %q escapes project root", name)
	}
	return clean, nil
}

// classify applies the conservative text heuristic: UTF-8 valid and no NUL
// byte in the first 4 KiB is Text, otherwise Binary.
func classify(data []byte) project.FileContent {
	probe := data
	if len(probe) > 4096 {
		probe = probe[:4096]
	}
	if utf8.Valid(data) && !bytes.Contains(probe, []byte{0}) {
		return project.Text(data)
	}
	return project.Binary(data)
}

// FromMultipart builds a Project from a Gin-parsed multipart form. A part
// named "file" whose filename ends in ".zip" is extracted as a zip archive;
// every other part with a filename becomes an individual file. A form with
// no filenamed parts fails with project.ErrNoFiles.
func FromMultipart(form *multipart.Form, limits Limits) (*project.Project, error) {
	p := project.New()
	var total int64
	sawFile := false

	for field, headers := range form.File {
		for _, fh := range headers {
			if fh.Filename == "" {
				continue
			}
			sawFile = true

			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("ingestion: open part %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(io.LimitReader(f, limits.MaxDecodedBytes+1))
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("ingestion: read part %s: %w", fh.Filename, err)
			}

			if field == "file" && strings.HasSuffix(strings.ToLower(fh.Filename), ".zip") {
				zp, err := FromZip(data, limits)
				if err != nil {
					return nil, err
				}
				for name, fc := range zp.Files {
					p.Files[name] = fc
				}
				total += zp.Size()
				continue
			}

			name, err := normalizePath(fh.Filename)
			if err != nil {
				return nil, err
			}
			total += int64(len(data))
			if total > limits.MaxDecodedBytes {
				return nil, project.Wrap(project.ErrProjectTooLarge, "decoded size exceeds cap")
			}
			p.Files[name] = classify(data)
		}
	}

	if !sawFile || len(p.Files) == 0 {
		return nil, project.Wrap(project.ErrNoFiles, "multipart submission had no filenamed parts")
	}
	return p, nil
}

// FromZip extracts a zip archive's entries into a Project, enforcing the
// 10x expansion-ratio zip bomb cap and the absolute decoded size cap.
func FromZip(data []byte, limits Limits) (*project.Project, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, project.Wrap(project.ErrInvalidPath, "not a valid zip archive: %v", err)
	}

	var totalUncompressed int64
	for _, zf := range zr.File {
		totalUncompressed += int64(zf.UncompressedSize64)
	}
	compressedSize := int64(len(data))
	if compressedSize > 0 && limits.MaxExpansionRate > 0 && totalUncompressed > compressedSize*limits.MaxExpansionRate {
		return nil, project.Wrap(project.ErrProjectTooLarge, "zip expansion ratio exceeds %dx", limits.MaxExpansionRate)
	}
	if limits.MaxDecodedBytes > 0 && totalUncompressed > limits.MaxDecodedBytes {
		return nil, project.Wrap(project.ErrProjectTooLarge, "decoded size exceeds cap")
	}

	p := project.New()
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name, err := normalizePath(zf.Name)
		if err != nil {
			return nil, err
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("ingestion: open zip entry %s: %w", zf.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("ingestion: read zip entry %s: %w", zf.Name, err)
		}
		p.Files[name] = classify(content)
	}

	if len(p.Files) == 0 {
		return nil, project.Wrap(project.ErrNoFiles, "zip archive had no entries")
	}
	return p, nil
}

// jsonFileValue is the tagged union a JSON-stream file value decodes into:
// either a bare string (Text), {"base64": "..."} (Binary), or
// {"type": "hash", "value": "<hex>"} (HashRef).
type jsonFileValue struct {
	raw json.RawMessage
}

func (v *jsonFileValue) UnmarshalJSON(data []byte) error {
	v.raw = append([]byte(nil), data...)
	return nil
}

func (v jsonFileValue) decode() (project.FileContent, error) {
	var s string
	if err := json.Unmarshal(v.raw, &s); err == nil {
		return project.Text([]byte(s)), nil
	}

	var obj struct {
		Base64 *string `json:"base64"`
		Type   string  `json:"type"`
		Value  string  `json:"value"`
	}
	if err := json.Unmarshal(v.raw, &obj); err != nil {
		return project.FileContent{}, project.Wrap(project.ErrInvalidPath, "unrecognized file value shape: %s", string(v.raw))
	}

	switch {
	case obj.Base64 != nil:
		decoded, err := base64.StdEncoding.DecodeString(*obj.Base64)
		if err != nil {
			return project.FileContent{}, fmt.Errorf("ingestion: decode base64: %w", err)
		}
		return project.Binary(decoded), nil
	case obj.Type == "hash":
		raw, err := hex.DecodeString(obj.Value)
		if err != nil || len(raw) != 8 {
			return project.FileContent{}, project.Wrap(project.ErrUnresolvedBlob, "invalid hash ref %q", obj.Value)
		}
		var h uint64
		for _, b := range raw {
			h = h<<8 | uint64(b)
		}
		return project.HashRef(h), nil
	default:
		return project.FileContent{}, project.Wrap(project.ErrInvalidPath, "unrecognized file value tag %q", obj.Type)
	}
}

// jsonMessage is the wire shape of a streaming-session inbound message.
type jsonMessage struct {
	Main  string                   `json:"main"`
	Files map[string]jsonFileValue `json:"files"`
}

// FromJSON decodes a streaming-session message into a Project. HashRef
// entries are left unresolved here; resolving them against a session's
// BlobStore and enforcing size caps happens in the orchestrator.
func FromJSON(raw []byte) (*project.Project, error) {
	var msg jsonMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("ingestion: decode json message: %w", err)
	}

	p := project.New()
	p.RootName = msg.Main

	for name, v := range msg.Files {
		normalized, err := normalizePath(name)
		if err != nil {
			return nil, err
		}
		fc, err := v.decode()
		if err != nil {
			return nil, err
		}
		p.Files[normalized] = fc
	}

	if len(p.Files) == 0 {
		return nil, project.Wrap(project.ErrNoFiles, "json message had no files")
	}
	return p, nil
}
