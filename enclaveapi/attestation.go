package enclaveapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the parsed, JSON-friendly form of a Nitro attestation document.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"` // base64 DER
	CABundle        []string  `json:"cabundle"`    // base64 DER, root first
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// SettlementReceipt is the user data the enclave binds into the attestation
// of a finalized auction. Amounts are base-10 integers in base units.
type SettlementReceipt struct {
	AuctionID      uint64    `json:"auction_id"`
	Seller         string    `json:"seller"`
	Winner         string    `json:"winner"`
	Asset          string    `json:"asset"`
	Amount         string    `json:"amount"`
	Collection     string    `json:"collection"`
	TokenID        string    `json:"token_id"`
	SettlementHash string    `json:"settlement_hash"`
	Nonce          string    `json:"nonce"`
	Timestamp      time.Time `json:"timestamp"`
}

// SettlementAttestationDoc is an attestation carrying a settlement receipt.
type SettlementAttestationDoc struct {
	AttestationDoc
	UserData *SettlementReceipt `json:"user_data"`
}

// AttestationCOSE is a raw COSE_Sign1 attestation as returned by the NSM.
type AttestationCOSE []byte

// AttestationCOSEBase64 is standard base64 of AttestationCOSE.
type AttestationCOSEBase64 string

// AttestationCOSEURLBase64 is unpadded URL-safe base64 of AttestationCOSE.
type AttestationCOSEURLBase64 string

// AttestationCOSEGzip is unpadded URL-safe base64 of gzipped AttestationCOSE.
type AttestationCOSEGzip string

func (c AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(c))
}

// CompressGzip compresses the attestation into a form short enough for links
// and query strings.
func (c AttestationCOSE) CompressGzip() (AttestationCOSEGzip, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(c); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return AttestationCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (b AttestationCOSEBase64) String() string { return string(b) }

func (b AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(data), nil
}

func (u AttestationCOSEURLBase64) String() string { return string(u) }

// Decode accepts both padded and unpadded input.
func (u AttestationCOSEURLBase64) Decode() (AttestationCOSE, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(u), "="))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return AttestationCOSE(data), nil
}

func (g AttestationCOSEGzip) String() string { return string(g) }

func (g AttestationCOSEGzip) Decompress() (AttestationCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	return AttestationCOSE(data), nil
}

// ParseAttestation accepts a receipt in any of its text forms: gzipped
// URL-safe base64, standard base64, or plain URL-safe base64. The gzip form
// is tried first since its magic bytes never begin a COSE message.
func ParseAttestation(s string) (AttestationCOSE, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty attestation")
	}
	if c, err := AttestationCOSEGzip(s).Decompress(); err == nil {
		return c, nil
	}
	if c, err := AttestationCOSEBase64(s).Decode(); err == nil {
		return c, nil
	}
	c, err := AttestationCOSEURLBase64(s).Decode()
	if err != nil {
		return nil, fmt.Errorf("attestation is not base64, base64url or gzip: %w", err)
	}
	return c, nil
}
