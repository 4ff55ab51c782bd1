package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthroughBuilder(originURL, referer string) string {
	return "https://proxy.example/m3u8?url=" + originURL + "&ref=" + referer
}

func TestM3U8RewritesSegmentLines(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXTINF:9.009,",
		"segment0.ts",
		"#EXTINF:9.009,",
		"https://cdn.example.com/seg/segment1.ts",
		"#EXT-X-ENDLIST",
	}, "\n")

	out, err := M3U8(body, "https://cdn.example.com/hls/index.m3u8", "https://watch.example", passthroughBuilder)
	require.NoError(t, err)

	inLines := strings.Split(body, "\n")
	outLines := strings.Split(out, "\n")
	require.Equal(t, len(inLines), len(outLines), "line count must be preserved")

	assert.Equal(t, "#EXTM3U", outLines[0])
	assert.Equal(t, "#EXT-X-VERSION:3", outLines[1])
	assert.Contains(t, outLines[3], "https://proxy.example/m3u8?url=https://cdn.example.com/hls/segment0.ts")
	assert.Contains(t, outLines[5], "https://proxy.example/m3u8?url=https://cdn.example.com/seg/segment1.ts")
	assert.Equal(t, "#EXT-X-ENDLIST", outLines[6])
}

func TestM3U8RewritesKeyURIAttribute(t *testing.T) {
	body := `#EXTM3U
#EXT-X-KEY:METHOD=AES-128,URI="key.bin",IV=0x1
segment0.ts
`
	out, err := M3U8(body, "https://cdn.example.com/hls/index.m3u8", "", passthroughBuilder)
	require.NoError(t, err)
	assert.Contains(t, out, `URI="https://proxy.example/m3u8?url=https://cdn.example.com/hls/key.bin&ref="`)
	assert.Contains(t, out, "METHOD=AES-128")
	assert.Contains(t, out, "IV=0x1")
}

func TestM3U8RewritesMapURIAttribute(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-MAP:URI=\"init.mp4\"\nsegment0.m4s\n"
	out, err := M3U8(body, "https://cdn.example.com/hls/index.m3u8", "", passthroughBuilder)
	require.NoError(t, err)
	assert.Contains(t, out, `URI="https://proxy.example/m3u8?url=https://cdn.example.com/hls/init.mp4&ref="`)
}

func TestM3U8PreservesCommentsVerbatim(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXT-X-TARGETDURATION:10\nsegment0.ts\n"
	out, err := M3U8(body, "https://cdn.example.com/hls/index.m3u8", "", passthroughBuilder)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#EXTM3U\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXT-X-TARGETDURATION:10\n"))
}

func TestM3U8HandlesAllFourURIForms(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		"https://other.example.com/abs.ts",
		"//other.example.com/proto-relative.ts",
		"/root-relative.ts",
		"relative.ts",
	}, "\n")

	out, err := M3U8(body, "https://cdn.example.com/hls/index.m3u8", "", passthroughBuilder)
	require.NoError(t, err)

	assert.Contains(t, out, "url=https://other.example.com/abs.ts")
	assert.Contains(t, out, "url=https://other.example.com/proto-relative.ts")
	assert.Contains(t, out, "url=https://cdn.example.com/root-relative.ts")
	assert.Contains(t, out, "url=https://cdn.example.com/hls/relative.ts")
}

func TestM3U8EmptyBodyErrors(t *testing.T) {
	_, err := M3U8("", "https://cdn.example.com/hls/index.m3u8", "", passthroughBuilder)
	assert.ErrorIs(t, err, ErrEmptyUpstream)
}
