package share

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// SlugAlphabet is the character set generated slugs are drawn from.
const SlugAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const maxCustomSlugLength = 255

// Existence reports whether a slug is held by a live record.
type Existence interface {
	Exists(ctx context.Context, slug string) (bool, error)
}

// SlugAllocator hands out slugs that are not held by any record at the time
// of the check. The check is advisory; Store.Create is the atomic guard.
type SlugAllocator struct {
	alphabet string
	length   uint8
	pick     func(n int) (int, error)
}

// NewSlugAllocator generates slugs of at least length characters.
func NewSlugAllocator(length uint8) *SlugAllocator {
	if length == 0 {
		length = 1
	}
	return &SlugAllocator{alphabet: SlugAlphabet, length: length, pick: cryptoPick}
}

// Allocate returns preferred when it is non-empty and free. Otherwise it
// generates a slug of max(configured, desired) characters, regenerating once
// on collision. A second collision yields ErrAllocation.
func (a *SlugAllocator) Allocate(ctx context.Context, store Existence, preferred string, desired uint8) (string, error) {
	if preferred != "" {
		if err := ValidateSlug(preferred); err != nil {
			return "", err
		}
		taken, err := store.Exists(ctx, preferred)
		if err != nil {
			return "", err
		}
		if !taken {
			return preferred, nil
		}
	}

	length := a.length
	if desired > length {
		length = desired
	}
	for attempt := 0; attempt < 2; attempt++ {
		slug, err := a.generate(int(length))
		if err != nil {
			return "", err
		}
		taken, err := store.Exists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
	}
	return "", fmt.Errorf("%w: generated slugs of length %d collided twice", ErrAllocation, length)
}

func (a *SlugAllocator) generate(length int) (string, error) {
	buf := make([]byte, length)
	for i := range buf {
		idx, err := a.pick(len(a.alphabet))
		if err != nil {
			return "", fmt.Errorf("generate slug: %w", err)
		}
		buf[i] = a.alphabet[idx]
	}
	return string(buf), nil
}

func cryptoPick(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// ValidateSlug accepts caller-chosen slugs made of ASCII letters, digits,
// '-' and '_'. Slugs double as file names, so nothing else is allowed.
func ValidateSlug(slug string) error {
	if slug == "" {
		return invalidf("slug", "must not be empty")
	}
	if len(slug) > maxCustomSlugLength {
		return invalidf("slug", "longer than %d characters", maxCustomSlugLength)
	}
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return invalidf("slug", "character %q not allowed", c)
		}
	}
	return nil
}
