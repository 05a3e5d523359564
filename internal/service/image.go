package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hogwarts-cloud/ecsstack/internal/models"
)

const DefaultImageTag = "latest"

var ErrInvalidImage = errors.New("invalid image reference")

// ParseImage splits a registry reference into repository and tag. A
// reference pinned by digest keeps the digest as its tag.
func ParseImage(reference string) (models.Image, error) {
	if reference == "" || strings.ContainsAny(reference, " \t\n") {
		return models.Image{}, fmt.Errorf("%w: %q", ErrInvalidImage, reference)
	}

	if repository, digest, ok := strings.Cut(reference, "@"); ok {
		if repository == "" || digest == "" {
			return models.Image{}, fmt.Errorf("%w: %q", ErrInvalidImage, reference)
		}
		return models.Image{Repository: repository, Tag: "@" + digest}, nil
	}

	// A colon after the last slash separates the tag; earlier ones belong
	// to a registry port.
	slash := strings.LastIndex(reference, "/")
	colon := strings.LastIndex(reference, ":")
	if colon > slash {
		repository, tag := reference[:colon], reference[colon+1:]
		if repository == "" || tag == "" {
			return models.Image{}, fmt.Errorf("%w: %q", ErrInvalidImage, reference)
		}
		return models.Image{Repository: repository, Tag: tag}, nil
	}

	return models.Image{Repository: reference, Tag: DefaultImageTag}, nil
}

func imageURI(image models.Image) string {
	if strings.HasPrefix(image.Tag, "@") {
		return image.Repository + image.Tag
	}
	return image.String()
}
