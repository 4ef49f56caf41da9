// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/platform/fs"
)

// subdirs is closed: no caller input ever becomes a directory name.
var subdirs = map[allowlist.Platform]map[MediaType]string{
	allowlist.Douyin:   {TypeVideo: "douyin_video", TypeImage: "douyin_image"},
	allowlist.TikTok:   {TypeVideo: "tiktok_video", TypeImage: "tiktok_image"},
	allowlist.Bilibili: {TypeVideo: "bilibili_video", TypeImage: "bilibili_image"},
}

// Naming builds artifact names. Every produced name is sanitized and
// checked to be a single plain path element.
type Naming struct {
	// Prefix is prepended when an attempt asks for it.
	Prefix string
}

// Subdir returns the directory below the download root for p and t.
func (n Naming) Subdir(p allowlist.Platform, t MediaType) (string, error) {
	dir, ok := subdirs[p][t]
	if !ok {
		return "", &RecordError{Field: "platform/type", Reason: fmt.Sprintf("no directory for %s/%s", p, t)}
	}
	return dir, nil
}

func (n Naming) stem(rec Record, usePrefix bool) string {
	prefix := ""
	if usePrefix {
		prefix = fs.SafeToken(n.Prefix)
	}
	return prefix + string(rec.Platform) + "_" + fs.SafeToken(rec.ID)
}

func watermark(rec Record) string {
	if rec.Watermark {
		return "_watermark"
	}
	return ""
}

// Video names a single video file.
func (n Naming) Video(rec Record, usePrefix bool) (string, error) {
	return finalName(n.stem(rec, usePrefix) + watermark(rec) + ".mp4")
}

// Image names the n-th (1-based) image of a record.
func (n Naming) Image(rec Record, usePrefix bool, index int, ext string) (string, error) {
	ext = strings.TrimPrefix(fs.SafeToken(strings.ToLower(ext)), "_")
	if ext == "" {
		ext = "bin"
	}
	return finalName(fmt.Sprintf("%s_%d%s.%s", n.stem(rec, usePrefix), index, watermark(rec), ext))
}

// Archive names the zip that bundles a record's images.
func (n Naming) Archive(rec Record, usePrefix bool) (string, error) {
	suffix := "_images"
	if rec.Watermark {
		suffix = "_images_watermark"
	}
	return finalName(n.stem(rec, usePrefix) + suffix + ".zip")
}

func finalName(raw string) (string, error) {
	name := fs.SecureFilename(raw)
	if !fs.ValidFilename(name) {
		return "", fmt.Errorf("%w: file name %q", fs.ErrInvalidPath, raw)
	}
	return name, nil
}
