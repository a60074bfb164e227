package content

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/herald/internal/apperr"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		text     string
		hashtags []string
		wantErr  bool
	}{
		{"ok twitter", PlatformTwitter, "hello world", []string{"go"}, false},
		{"empty text", PlatformLinkedIn, "   ", nil, true},
		{"twitter at limit", PlatformTwitter, strings.Repeat("a", 280), nil, false},
		{"twitter over limit", PlatformTwitter, strings.Repeat("a", 281), nil, true},
		{"multibyte counted as runes", PlatformTwitter, strings.Repeat("é", 280), nil, false},
		{"linkedin allows longer", PlatformLinkedIn, strings.Repeat("a", 2500), nil, false},
		{"instagram over limit", PlatformInstagram, strings.Repeat("a", 2201), nil, true},
		{"unknown platform", Platform("myspace"), "hi", nil, true},
		{"hashtag with space", PlatformTwitter, "hi", []string{"two words"}, true},
		{"too many hashtags", PlatformLinkedIn, "hi", make31Tags(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.platform, tt.text, tt.hashtags)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func make31Tags() []string {
	tags := make([]string, MaxHashtags+1)
	for i := range tags {
		tags[i] = "t" + strings.Repeat("x", i)
	}
	return tags
}

func TestExtractHashtags(t *testing.T) {
	got := ExtractHashtags("Launch day! #Go #golang #go and #cloud_native.")
	assert.Equal(t, []string{"Go", "golang", "cloud_native"}, got)
	assert.Nil(t, ExtractHashtags("no tags here"))
}

func TestNormalizeHashtags(t *testing.T) {
	got := NormalizeHashtags([]string{" #Go", "go", "", "#", "cloud"})
	assert.Equal(t, []string{"Go", "cloud"}, got)
}

func TestParse(t *testing.T) {
	p, err := ParsePlatform(" Twitter ")
	require.NoError(t, err)
	assert.Equal(t, PlatformTwitter, p)

	_, err = ParseStatus("cancelled")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	assert.True(t, StatusArchived.Terminal())
	assert.False(t, StatusPublished.Terminal())
}

func TestCloneIsDeep(t *testing.T) {
	when := time.Now()
	orig := Item{Hashtags: []string{"a"}, ScheduledFor: &when}
	cp := orig.Clone()
	cp.Hashtags[0] = "b"
	*cp.ScheduledFor = when.Add(time.Hour)

	assert.Equal(t, "a", orig.Hashtags[0])
	assert.True(t, orig.ScheduledFor.Equal(when))
}
