package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStablePath(t *testing.T) {
	assert.Equal(t, "path/foo.png",
		StablePath("https://files.example.com/sig=AAA/path/foo.png"))
	assert.Equal(t, "ws-1/attachments/a.pdf",
		StablePath("https://files.example.com/v1/sig=x_Y-9/ws-1/attachments/a.pdf"))

	// Not a signed reference: returned unchanged.
	assert.Equal(t, "https://example.com/plain.png", StablePath("https://example.com/plain.png"))
}

func TestStabilizeBodyKeepsOldTokenForSamePath(t *testing.T) {
	old := "before https://files.example.com/sig=AAA/path/foo.png after"
	next := "before https://files.example.com/sig=BBB/path/foo.png after"

	assert.Equal(t, old, StabilizeBody(old, next))
}

func TestStabilizeBodyLeavesNewReferencesAlone(t *testing.T) {
	old := "https://files.example.com/sig=AAA/path/foo.png"
	next := "https://files.example.com/sig=BBB/path/foo.png and https://files.example.com/sig=CCC/path/new.png"

	got := StabilizeBody(old, next)
	assert.Contains(t, got, "sig=AAA/path/foo.png")
	assert.Contains(t, got, "sig=CCC/path/new.png")
}

func TestStabilizeBodyMultipleReferences(t *testing.T) {
	old := "a https://f.example.com/sig=A1/one.png b https://f.example.com/sig=A2/two.png"
	next := "a https://f.example.com/sig=B1/one.png b https://f.example.com/sig=B2/two.png"

	assert.Equal(t, old, StabilizeBody(old, next))
}

func TestStabilizeBodyNoReferences(t *testing.T) {
	assert.Equal(t, "plain text", StabilizeBody("also plain", "plain text"))
	assert.Equal(t, "new https://f.example.com/sig=B/one.png", StabilizeBody("no refs here", "new https://f.example.com/sig=B/one.png"))
}
