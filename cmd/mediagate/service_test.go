// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/mediagate/internal/config"
	"github.com/ManuGH/mediagate/internal/health"
	"github.com/ManuGH/mediagate/internal/infra/ffmpeg"
	"github.com/ManuGH/mediagate/internal/pipeline"
	"github.com/ManuGH/mediagate/internal/testutil"
	"github.com/ManuGH/mediagate/internal/version"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type concatMuxer struct{}

func (concatMuxer) Mux(_ context.Context, video, audio, output string) (ffmpeg.Result, error) {
	v, err := os.ReadFile(video)
	if err != nil {
		return ffmpeg.Result{ExitCode: 1}, err
	}
	a, err := os.ReadFile(audio)
	if err != nil {
		return ffmpeg.Result{ExitCode: 1}, err
	}
	return ffmpeg.Result{}, os.WriteFile(output, append(v, a...), 0o600)
}

func TestDecodeRecords(t *testing.T) {
	one, err := decodeRecords(strings.NewReader(`{"platform":"douyin","type":"video","id":"1","video_url":"https://v.douyin.com/a.mp4"}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "https://v.douyin.com/a.mp4", one[0].record().URLs.Primary)

	many, err := decodeRecords(strings.NewReader(`[{"id":"1"},{"id":"2","image_urls":["a","b"]}]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, []string{"a", "b"}, many[1].record().URLs.Images)

	_, err = decodeRecords(strings.NewReader(`[]`))
	assert.Error(t, err)
	_, err = decodeRecords(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestLogScope(t *testing.T) {
	cfg := config.Defaults()
	cfg.DownloadRoot = t.TempDir()
	cfg.TempRoot = t.TempDir()
	scope, err := config.BuildScope(cfg)
	require.NoError(t, err)
	table, err := config.AllowList(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	logScope(zerolog.New(&buf), scope, table)

	var entry struct {
		Event  string   `json:"event"`
		Roots  []string `json:"roots"`
		Strict bool     `json:"strict"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "startup.scope", entry.Event)
	assert.Len(t, entry.Roots, 2)
	assert.True(t, entry.Strict)
}

func TestRunAllReportsInInputOrder(t *testing.T) {
	srv := testutil.NewMediaServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v.mp4":
			_, _ = w.Write([]byte("MP4"))
		case "/video.m4s":
			_, _ = w.Write([]byte("V"))
		case "/audio.m4s":
			_, _ = w.Write([]byte("A"))
		default:
			http.NotFound(w, r)
		}
	}))
	client := srv.Client()
	t.Cleanup(client.CloseIdleConnections)

	scope, downloadRoot, tempRoot := testutil.Roots(t)
	cfg := config.Defaults()
	cfg.DownloadRoot = downloadRoot
	cfg.TempRoot = tempRoot
	svc := wire(cfg, scope, testutil.Validator(), client, concatMuxer{})

	records := []recordInput{
		{Platform: "douyin", Type: "video", ID: "d1", VideoURL: "https://v26-web.douyin.com/v.mp4"},
		{Platform: "bilibili", Type: "video", ID: "BV1", VideoURL: "https://upos-sz-mirror.bilivideo.com/video.m4s", AudioURL: "https://upos-sz-mirror.bilivideo.com/audio.m4s"},
		{Platform: "tiktok", Type: "video", ID: "t1", VideoURL: "http://www.tiktok.com/v.mp4"},
	}

	var out bytes.Buffer
	failed := svc.runAll(context.Background(), records, pipeline.Options{}, 3, &out)
	assert.Equal(t, 1, failed)

	var got []resultOutput
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r resultOutput
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		got = append(got, r)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, "success", got[0].Status)
	assert.Equal(t, "success", got[1].Status)
	assert.Equal(t, "failed", got[2].Status)
	assert.Equal(t, "validation", got[2].Kind)
	assert.NotEmpty(t, got[2].Error)

	merged, err := os.ReadFile(filepath.Join(downloadRoot, "bilibili_video", "bilibili_BV1.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "VA", string(merged))
}

func TestConfigValidateCommand(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(t.TempDir(), "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("downloadRoot: "+root+"\n"), 0o600))
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("downloadRoot: "+root+"\nmerge:\n  concurrency: 0\n"), 0o600))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, runConfigCLI([]string{"validate", "-f", good}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "is valid")

	stderr.Reset()
	assert.Equal(t, 1, runConfigCLI([]string{"validate", "--file", bad}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "merge.concurrency")

	assert.Equal(t, 2, runConfigCLI([]string{"explode"}, &stdout, &stderr))
}

func TestConfigDumpJSON(t *testing.T) {
	t.Setenv(config.EnvDownloadRoot, t.TempDir())
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, runConfigCLI([]string{"dump", "--format=json"}, &stdout, &stderr), stderr.String())

	var cfg config.AppConfig
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &cfg))
	assert.Equal(t, config.DefaultChunkSize, cfg.Fetch.ChunkSize)
}

func TestVersionFlag(t *testing.T) {
	var stdout bytes.Buffer
	assert.Equal(t, 0, run([]string{"-version"}, strings.NewReader(""), &stdout))
	assert.Contains(t, stdout.String(), version.Version)
}

func TestMetricsMuxServesProbes(t *testing.T) {
	h := metricsMux(health.NewManager("v-test"))
	for _, path := range []string{"/metrics", "/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
