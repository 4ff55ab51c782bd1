package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVTTRewritesBareURL(t *testing.T) {
	body := "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\nhttps://cdn.example.com/thumbs/1.jpg\n"
	out, err := VTT(body, "https://cdn.example.com/subs/en.vtt", "https://watch.example", passthroughBuilder)
	require.NoError(t, err)
	assert.Contains(t, out, "https://proxy.example/m3u8?url=https://cdn.example.com/thumbs/1.jpg")
	assert.True(t, strings.HasPrefix(out, "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\n"))
}

func TestVTTRewritesRelativeBareURL(t *testing.T) {
	body := "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\n./thumbs/1.jpg\n\n2\n00:00:04.000 --> 00:00:08.000\n../posters/a.png\n"
	out, err := VTT(body, "https://cdn.example.com/subs/en.vtt", "https://watch.example", passthroughBuilder)
	require.NoError(t, err)
	assert.Contains(t, out, "https://proxy.example/m3u8?url=https://cdn.example.com/subs/thumbs/1.jpg")
	assert.Contains(t, out, "https://proxy.example/m3u8?url=https://cdn.example.com/posters/a.png")
	assert.True(t, strings.HasPrefix(out, "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\n"))
}

func TestVTTPreservesCueTextWithoutURLs(t *testing.T) {
	body := "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\nHello, world.\n"
	out, err := VTT(body, "https://cdn.example.com/subs/en.vtt", "", passthroughBuilder)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestVTTEmptyBodyErrors(t *testing.T) {
	_, err := VTT("", "https://cdn.example.com/subs/en.vtt", "", passthroughBuilder)
	assert.ErrorIs(t, err, ErrEmptyUpstream)
}
