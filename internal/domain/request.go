package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Resolution is the output size tier requested from the provider.
type Resolution string

// Supported resolutions.
const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// DefaultResolution is used when a request leaves the resolution empty.
const DefaultResolution = Resolution1K

// ParseResolution validates s. An empty string yields DefaultResolution.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.TrimSpace(s))
	switch r {
	case "":
		return DefaultResolution, nil
	case Resolution1K, Resolution2K, Resolution4K:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
}

// AspectRatio is the requested output aspect ratio.
type AspectRatio string

// DefaultAspectRatio is used when a request leaves the aspect ratio empty.
const DefaultAspectRatio AspectRatio = "1:1"

var aspectRatios = map[AspectRatio]struct{}{
	"1:1":  {},
	"2:3":  {},
	"3:2":  {},
	"3:4":  {},
	"4:3":  {},
	"4:5":  {},
	"5:4":  {},
	"9:16": {},
	"16:9": {},
	"21:9": {},
	"auto": {},
}

// ParseAspectRatio validates s. An empty string yields DefaultAspectRatio.
func ParseAspectRatio(s string) (AspectRatio, error) {
	a := AspectRatio(strings.TrimSpace(s))
	if a == "" {
		return DefaultAspectRatio, nil
	}
	if _, ok := aspectRatios[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAspectRatio, s)
	}
	return a, nil
}

// Limits bounds what a single generation request may contain.
type Limits struct {
	MaxPromptLength int
	MaxImages       int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxPromptLength: 800,
		MaxImages:       8,
	}
}

// GenerationRequest is a client's request to generate an image, before any
// upload has been stored or the provider has been contacted.
type GenerationRequest struct {
	Prompt      string
	Resolution  Resolution
	AspectRatio AspectRatio
	ImageURLs   []string
	ChatID      string

	// UploadCount is the number of attached files that will be stored.
	UploadCount int
}

// Normalize trims the prompt, drops blank image URLs and fills in default
// resolution and aspect ratio.
func (r *GenerationRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.ChatID = strings.TrimSpace(r.ChatID)

	urls := make([]string, 0, len(r.ImageURLs))
	for _, u := range r.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	r.ImageURLs = urls

	if r.Resolution == "" {
		r.Resolution = DefaultResolution
	}
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
}

// Validate normalizes the request and checks it against limits.
func (r *GenerationRequest) Validate(limits Limits) error {
	r.Normalize()

	if r.Prompt == "" {
		return NewValidationError("prompt", "cannot be empty", nil)
	}
	if limits.MaxPromptLength > 0 && utf8.RuneCountInString(r.Prompt) > limits.MaxPromptLength {
		return NewValidationError(
			"prompt",
			fmt.Sprintf("must be at most %d characters", limits.MaxPromptLength),
			nil,
		)
	}

	if _, err := ParseResolution(string(r.Resolution)); err != nil {
		return NewValidationError("resolution", "must be one of 1K, 2K, 4K", err)
	}
	if _, err := ParseAspectRatio(string(r.AspectRatio)); err != nil {
		return NewValidationError("aspectRatio", "is not a supported aspect ratio", err)
	}

	for _, raw := range r.ImageURLs {
		if !isRemoteURL(raw) {
			return NewValidationError("imageUrls", fmt.Sprintf("contains an invalid URL %q", raw), nil)
		}
	}

	if limits.MaxImages > 0 {
		if r.UploadCount > limits.MaxImages {
			return NewValidationError(
				"images",
				fmt.Sprintf("at most %d files may be uploaded", limits.MaxImages),
				nil,
			)
		}
		if len(r.ImageURLs)+r.UploadCount > limits.MaxImages {
			return NewValidationError(
				"imageUrls",
				fmt.Sprintf("at most %d reference images are allowed", limits.MaxImages),
				nil,
			)
		}
	}

	return nil
}

func isRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
