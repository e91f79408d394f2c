package parsing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

// NitroAttestationDocument represents the raw CBOR structure from AWS Nitro Enclaves
type NitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"` // milliseconds since the epoch
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// coseSign1 is the COSE_Sign1 array the NSM returns. A leading COSE_Sign1
// tag, as other producers emit, is skipped by the decoder.
type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

// attestationPayload returns the attestation document a COSE_Sign1 message
// carries. Detached payloads and unsigned messages are rejected.
func attestationPayload(coseBytes []byte) ([]byte, error) {
	var msg coseSign1
	if err := cbor.Unmarshal(coseBytes, &msg); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("COSE_Sign1 carries no attestation document")
	}
	if len(msg.Signature) == 0 {
		return nil, fmt.Errorf("COSE_Sign1 is unsigned")
	}
	return msg.Payload, nil
}

// FormatPCR formats PCR bytes as hex string
func FormatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// EncodeCertificateBundle converts certificate bundle to base64 strings
func EncodeCertificateBundle(bundle [][]byte) []string {
	result := make([]string, len(bundle))
	for i, cert := range bundle {
		result[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return result
}

// ExtractPCRs extracts and formats PCR values from the raw CBOR PCR map
func ExtractPCRs(rawPCRs map[uint64][]byte) enclaveapi.PCRs {
	return enclaveapi.PCRs{
		ImageFileHash:   FormatPCR(rawPCRs[0]),
		KernelHash:      FormatPCR(rawPCRs[1]),
		ApplicationHash: FormatPCR(rawPCRs[2]),
		IAMRoleHash:     FormatPCR(rawPCRs[3]),
		InstanceIDHash:  FormatPCR(rawPCRs[4]),
		SigningCertHash: FormatPCR(rawPCRs[8]),
	}
}

// ParseAttestationDoc decodes the document inside a COSE_Sign1 attestation.
// The user data is returned undecoded. Signatures are not checked here.
func ParseAttestationDoc(coseBytes enclaveapi.AttestationCOSE) (enclaveapi.AttestationDoc, []byte, error) {
	payload, err := attestationPayload(coseBytes)
	if err != nil {
		return enclaveapi.AttestationDoc{}, nil, err
	}

	var raw NitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return enclaveapi.AttestationDoc{}, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	doc := enclaveapi.AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            ExtractPCRs(raw.PCRs),
		CABundle:        EncodeCertificateBundle(raw.CABundle),
		Nonce:           string(raw.Nonce),
	}
	if len(raw.Certificate) > 0 {
		doc.Certificate = base64.StdEncoding.EncodeToString(raw.Certificate)
	}
	if len(raw.PublicKey) > 0 {
		doc.PublicKey = base64.StdEncoding.EncodeToString(raw.PublicKey)
	}
	return doc, raw.UserData, nil
}

// ParseSettlementAttestation decodes an attestation and its settlement receipt.
func ParseSettlementAttestation(coseBytes enclaveapi.AttestationCOSE) (*enclaveapi.SettlementAttestationDoc, error) {
	doc, userData, err := ParseAttestationDoc(coseBytes)
	if err != nil {
		return nil, err
	}
	result := &enclaveapi.SettlementAttestationDoc{AttestationDoc: doc}
	if len(userData) == 0 {
		return result, nil
	}
	var receipt enclaveapi.SettlementReceipt
	if err := json.Unmarshal(userData, &receipt); err != nil {
		return nil, fmt.Errorf("parse user data: %w", err)
	}
	result.UserData = &receipt
	return result, nil
}
