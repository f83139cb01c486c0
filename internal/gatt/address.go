package gatt

import (
	"context"
	"fmt"
	"strings"
)

// Target is a resolved characteristic address. A two part address owns the
// characteristic collection enumerated to resolve it; Release frees it.
type Target struct {
	Service        *Service
	Characteristic *Characteristic

	scratch []*Characteristic
}

// Release frees the attributes enumerated for the target. The tree's own
// attributes are left alone.
func (t *Target) Release() {
	if t == nil {
		return
	}
	ReleaseAll(t.scratch)
	t.scratch = nil
}

// Parser resolves "service/characteristic" and "characteristic" tokens.
type Parser struct {
	tree *Tree
}

// NewParser creates a parser over tree.
func NewParser(tree *Tree) *Parser {
	return &Parser{tree: tree}
}

// Parse resolves token. With one "/" the service part resolves against the
// service collection and the characteristic part against a fresh
// enumeration of that service, whether or not it is the selected one.
// Without "/" the token resolves against the selected service.
func (p *Parser) Parse(ctx context.Context, token string) (*Target, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &AddressError{Kind: Malformed, Token: token}
	}

	parts := strings.Split(token, "/")
	switch len(parts) {
	case 1:
		svc := p.tree.SelectedService()
		if svc == nil {
			return nil, &AddressError{Kind: NoServiceSelected, Token: token}
		}
		c, _, ok := Find(p.tree.Characteristics(), token)
		if !ok {
			return nil, &AddressError{Kind: NotFound, Token: token}
		}
		return &Target{Service: svc, Characteristic: c}, nil

	case 2:
		if parts[0] == "" || parts[1] == "" {
			return nil, &AddressError{Kind: Malformed, Token: token}
		}
		svc, err := p.tree.FindService(parts[0])
		if err != nil {
			return nil, &AddressError{Kind: NotFound, Token: token}
		}
		h := svc.Handle()
		if h == nil {
			return nil, ErrHandleReleased
		}
		handles, err := h.Characteristics(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate characteristics of %s: %w", svc.Name(), err)
		}
		scratch := WrapCharacteristics(handles)
		c, _, ok := Find(scratch, parts[1])
		if !ok {
			ReleaseAll(scratch)
			return nil, &AddressError{Kind: NotFound, Token: token}
		}
		return &Target{Service: svc, Characteristic: c, scratch: scratch}, nil

	default:
		return nil, &AddressError{Kind: Malformed, Token: token}
	}
}
