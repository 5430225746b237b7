package verify

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"go.uber.org/zap"
)

var ErrSignatureInvalid = errors.New("invalid signature")

const armorHeader = "-----BEGIN PGP"

// Signature checks a detached OpenPGP signature, armored or binary, over content against an armored
// public key ring.
func Signature(log *zap.Logger, content []byte, signature []byte, armoredKeyRing string) error {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKeyRing))
	if err != nil {
		log.Error("Failed to read the public key ring.", zap.Error(err))
		return fmt.Errorf("%w: unreadable public key: %v", ErrSignatureInvalid, err)
	}

	var signer *openpgp.Entity
	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte(armorHeader)) {
		signer, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(content), bytes.NewReader(signature), &packet.Config{})
	} else {
		signer, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(content), bytes.NewReader(signature), &packet.Config{})
	}
	if err != nil {
		log.Error("Signature verification failed.", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	var identities []string
	for name := range signer.Identities {
		identities = append(identities, name)
	}
	log.Debug("Signature verified.", zap.String("key-id", signer.PrimaryKey.KeyIdString()), zap.Strings("identities", identities))
	return nil
}
