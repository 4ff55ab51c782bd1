package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <Period>
    <BaseURL>dash/</BaseURL>
    <AdaptationSet mimeType="video/mp4">
      <Representation id="720p" bandwidth="2000000">
        <SegmentTemplate initialization="init-$RepresentationID$.m4s" media="chunk-$RepresentationID$-$Number$.m4s" startNumber="1" timescale="1000" duration="4000"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>
`

func TestMPDRewritesBaseURL(t *testing.T) {
	out, err := MPD(sampleMPD, "https://cdn.example.com/content/manifest.mpd", "", passthroughBuilder)
	require.NoError(t, err)
	assert.Contains(t, out, "<BaseURL>https://proxy.example/m3u8?url=https://cdn.example.com/content/dash/&ref=</BaseURL>")
}

func TestMPDRewritesSegmentTemplateAttributesPreservingTokens(t *testing.T) {
	out, err := MPD(sampleMPD, "https://cdn.example.com/content/manifest.mpd", "", passthroughBuilder)
	require.NoError(t, err)
	assert.Contains(t, out, "$RepresentationID$")
	assert.Contains(t, out, "$Number$")
	assert.Contains(t, out, `initialization="https://proxy.example/m3u8?url=https://cdn.example.com/content/init-$RepresentationID$.m4s&ref="`)
	assert.Contains(t, out, `media="https://proxy.example/m3u8?url=https://cdn.example.com/content/chunk-$RepresentationID$-$Number$.m4s&ref="`)
}

func TestMPDPreservesUnrelatedXML(t *testing.T) {
	out, err := MPD(sampleMPD, "https://cdn.example.com/content/manifest.mpd", "", passthroughBuilder)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `type="static"`)
	assert.Contains(t, out, `bandwidth="2000000"`)
}

func TestMPDEmptyBodyErrors(t *testing.T) {
	_, err := MPD("", "https://cdn.example.com/content/manifest.mpd", "", passthroughBuilder)
	assert.ErrorIs(t, err, ErrEmptyUpstream)
}
