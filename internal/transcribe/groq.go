package transcribe

import (
	"context"
	"fmt"
)

// unsupportedProvider is a selectable backend with no implementation. It never
// touches the network.
type unsupportedProvider struct {
	kind Kind
}

func (u unsupportedProvider) Name() string  { return string(u.kind) }
func (u unsupportedProvider) Model() string { return "" }

func (u unsupportedProvider) Transcribe(ctx context.Context, req Request) (string, error) {
	if err := requireKey(string(u.kind), req); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: %s support is not implemented", ErrUnsupportedProvider, u.kind)
}
