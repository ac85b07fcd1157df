package model

import (
	"context"
	"fmt"

	"github.com/lostboard/vismatch/blobstore"
	"github.com/lostboard/vismatch/convnet"
)

// FromBlob loads a weight file named name from store.
func FromBlob(store blobstore.BlobStore, name string, optFns ...convnet.NetworkOption) Loader {
	return func(ctx context.Context) (*convnet.Network, error) {
		b, err := store.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open weights %q: %w", name, err)
		}
		defer func() { _ = b.Close() }()

		net, err := convnet.Decode(b, optFns...)
		if err != nil {
			return nil, fmt.Errorf("decode weights %q: %w", name, err)
		}
		return net, nil
	}
}

// FromRandom builds a network with deterministic random weights. It stands
// in for a pretrained file in development and tests.
func FromRandom(arch convnet.Arch, seed uint64, optFns ...convnet.NetworkOption) Loader {
	return func(context.Context) (*convnet.Network, error) {
		return convnet.Random(arch, seed, optFns...)
	}
}

// Static returns a Loader that always yields net.
func Static(net *convnet.Network) Loader {
	return func(context.Context) (*convnet.Network, error) { return net, nil }
}
