package encryption

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// IdentityInfo bundles a node's Ed25519 keypair with the peer id derived
// from it. The peer id is what operators register in the on-chain peer
// registry.
type IdentityInfo struct {
	PrivateKey crypto.PrivKey
	PublicKey  crypto.PubKey
	PeerID     peer.ID
}

// GenerateIdentity creates a fresh Ed25519 node identity.
func GenerateIdentity() (*IdentityInfo, error) {
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	peerID, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, err
	}

	return &IdentityInfo{
		PrivateKey: priv,
		PublicKey:  pub,
		PeerID:     peerID,
	}, nil
}

// SaveIdentity persists the private key at path, creating parent
// directories as needed. The key file is owner-only.
func SaveIdentity(identity *IdentityInfo, path string) error {
	data, err := crypto.MarshalPrivateKey(identity.PrivateKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// LoadIdentity reads a private key saved by SaveIdentity and rederives
// the public key and peer id.
func LoadIdentity(path string) (*IdentityInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	priv, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, err
	}

	pub := priv.GetPublic()
	peerID, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, err
	}

	return &IdentityInfo{
		PrivateKey: priv,
		PublicKey:  pub,
		PeerID:     peerID,
	}, nil
}

// LoadOrCreateIdentity returns the identity stored at path, generating
// and persisting a fresh one when no file exists yet. The returned bool
// reports whether a new identity was created. An existing but unreadable
// key file is an error rather than a silent regeneration: overwriting it
// would change the node's peer id and orphan its registry entry.
func LoadOrCreateIdentity(path string) (*IdentityInfo, bool, error) {
	if _, err := os.Stat(path); err == nil {
		info, err := LoadIdentity(path)
		if err != nil {
			return nil, false, fmt.Errorf("load identity %s: %w", path, err)
		}
		return info, false, nil
	} else if !os.IsNotExist(err) {
		return nil, false, err
	}

	info, err := GenerateIdentity()
	if err != nil {
		return nil, false, err
	}
	if err := SaveIdentity(info, path); err != nil {
		return nil, false, err
	}
	return info, true, nil
}
