package cube

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Asset is the loader's view of one item asset: the band name it serves, the
// href it will be fetched from, and its media type.
type Asset struct {
	Name      string
	Href      string
	MediaType string
}

// RewriteFunc maps an asset to its externally resolvable form, e.g. swapping
// an https href for an equivalent storage-protocol href, or applying a
// signing function. Implementations must be pure and return ErrNoAlternate
// when they have no rewrite for the asset.
type RewriteFunc func(Asset) (Asset, error)

// ErrNoAlternate is returned by a RewriteFunc when it cannot produce an
// alternate URL for the asset. The AlternatePolicy decides whether that
// falls back to the default href or fails the load.
var ErrNoAlternate = errors.New("no alternate URL for asset")

// AlternatePolicy controls what happens when the rewrite hook declines an asset.
type AlternatePolicy int

const (
	// AlternateFallback uses the asset's default href when no alternate exists.
	AlternateFallback AlternatePolicy = iota
	// AlternateRequire fails the load when no alternate exists.
	AlternateRequire
)

// ParseAlternatePolicy converts the configuration string form.
func ParseAlternatePolicy(s string) (AlternatePolicy, error) {
	switch s {
	case "fallback", "":
		return AlternateFallback, nil
	case "require":
		return AlternateRequire, nil
	default:
		return 0, fmt.Errorf("invalid alternate policy %q, must be 'fallback' or 'require'", s)
	}
}

// ProtocolRewriter returns a RewriteFunc that swaps virtual-hosted object
// store https hrefs for their storage-protocol equivalents, e.g.
// https://bucket.s3.us-west-2.amazonaws.com/key -> s3://bucket/key.
func ProtocolRewriter(scheme string) RewriteFunc {
	return func(a Asset) (Asset, error) {
		u, err := url.Parse(a.Href)
		if err != nil {
			return Asset{}, fmt.Errorf("asset %q has invalid href: %w", a.Name, err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return Asset{}, ErrNoAlternate
		}

		labels := strings.Split(u.Host, ".")
		// bucket.s3[.region].amazonaws.com
		if len(labels) < 4 || labels[1] != "s3" || !strings.HasSuffix(u.Host, ".amazonaws.com") {
			return Asset{}, ErrNoAlternate
		}

		rewritten := a
		rewritten.Href = scheme + "://" + labels[0] + strings.TrimSuffix(u.Path, "/")
		return rewritten, nil
	}
}

// SigningRewriter wraps a URL signing function as a RewriteFunc.
func SigningRewriter(sign func(href string) (string, error)) RewriteFunc {
	return func(a Asset) (Asset, error) {
		signed, err := sign(a.Href)
		if err != nil {
			return Asset{}, fmt.Errorf("failed to sign asset %q: %w", a.Name, err)
		}
		rewritten := a
		rewritten.Href = signed
		return rewritten, nil
	}
}

// resolveAsset applies the rewrite hook under the alternate policy.
func resolveAsset(rewrite RewriteFunc, policy AlternatePolicy, a Asset) (Asset, error) {
	if rewrite == nil {
		return a, nil
	}

	rewritten, err := rewrite(a)
	if err == nil {
		return rewritten, nil
	}
	if !errors.Is(err, ErrNoAlternate) {
		return Asset{}, err
	}
	if policy == AlternateRequire {
		return Asset{}, fmt.Errorf("asset %q: %w", a.Name, err)
	}
	return a, nil
}
