package checker

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// Sentinel errors for keyring loading.
var (
	ErrNoSigningKey     = errors.New("no signing key in keyring")
	ErrKeyringRead      = errors.New("failed to read keyring")
	ErrUnexpectedPacket = errors.New("unexpected packet type")
)

const (
	armorPrefix = "-----BEGIN"

	// shortKeyIDLen is the number of trailing fingerprint hex digits that form a short key id.
	shortKeyIDLen = 8
)

// OpenPGP checks candidate passphrases against one encrypted OpenPGP secret key.
//
// The key is kept in serialized form. Every check parses a private copy, so
// concurrent checks never touch shared key material.
type OpenPGP struct {
	packet      []byte
	fingerprint string
}

// Open reads a keyring file and selects the signing key matching keyID.
func Open(path, keyID string) (*OpenPGP, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyringRead, err)
	}
	defer file.Close()

	return LoadKeyring(file, keyID)
}

// LoadKeyring parses an armored or binary keyring and selects the first secret
// key that can sign and whose short key id equals keyID (case-insensitive).
// An empty keyID selects the first signing secret key.
func LoadKeyring(r io.Reader, keyID string) (*OpenPGP, error) {
	entities, err := readEntities(r)
	if err != nil {
		return nil, err
	}

	key := selectKey(entities, keyID)
	if key == nil {
		if keyID != "" {
			return nil, fmt.Errorf("%w: key id %s", ErrNoSigningKey, keyID)
		}

		return nil, ErrNoSigningKey
	}

	var buf bytes.Buffer

	err = key.Serialize(&buf)
	if err != nil {
		return nil, fmt.Errorf("serialize secret key: %w", err)
	}

	return &OpenPGP{
		packet:      buf.Bytes(),
		fingerprint: hex.EncodeToString(key.PublicKey.Fingerprint),
	}, nil
}

func readEntities(r io.Reader) (openpgp.EntityList, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(len(armorPrefix))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrKeyringRead, err)
	}

	var entities openpgp.EntityList

	if bytes.HasPrefix(bytes.TrimSpace(head), []byte(armorPrefix)) {
		entities, err = openpgp.ReadArmoredKeyRing(br)
	} else {
		entities, err = openpgp.ReadKeyRing(br)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyringRead, err)
	}

	return entities, nil
}

func selectKey(entities openpgp.EntityList, keyID string) *packet.PrivateKey {
	for _, entity := range entities {
		candidates := make([]*packet.PrivateKey, 0, len(entity.Subkeys)+1)
		candidates = append(candidates, entity.PrivateKey)

		for _, sub := range entity.Subkeys {
			candidates = append(candidates, sub.PrivateKey)
		}

		for _, key := range candidates {
			if key == nil || key.Dummy() || !key.PublicKey.CanSign() {
				continue
			}

			if keyID == "" || matchesShortID(key.PublicKey.Fingerprint, keyID) {
				return key
			}
		}
	}

	return nil
}

func matchesShortID(fingerprint []byte, keyID string) bool {
	id := hex.EncodeToString(fingerprint)
	if len(id) < shortKeyIDLen {
		return false
	}

	return strings.EqualFold(id[len(id)-shortKeyIDLen:], keyID)
}

// Fingerprint returns the hex fingerprint of the selected key.
func (c *OpenPGP) Fingerprint() string {
	return c.fingerprint
}

// KeyID returns the short (8 hex digit) id of the selected key.
func (c *OpenPGP) KeyID() string {
	if len(c.fingerprint) < shortKeyIDLen {
		return strings.ToUpper(c.fingerprint)
	}

	return strings.ToUpper(c.fingerprint[len(c.fingerprint)-shortKeyIDLen:])
}

// Check attempts to decrypt a private copy of the key with candidate.
// A failed decryption is a non-match; only a corrupt stored packet is an error.
func (c *OpenPGP) Check(candidate string) (bool, error) {
	pkt, err := packet.Read(bytes.NewReader(c.packet))
	if err != nil {
		return false, fmt.Errorf("parse secret key: %w", err)
	}

	key, ok := pkt.(*packet.PrivateKey)
	if !ok {
		return false, fmt.Errorf("%w: %T", ErrUnexpectedPacket, pkt)
	}

	return key.Decrypt([]byte(candidate)) == nil, nil
}
