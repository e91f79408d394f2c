// Command receipt-validator checks an attested settlement receipt returned by
// end_auction against the outcome the caller expects.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/cloudx-io/nftescrow/enclaveapi"
	"github.com/cloudx-io/nftescrow/validation"
)

var (
	receiptFlag = cli.StringFlag{
		Name:  "receipt",
		Usage: "receipt as base64, base64url or gzip, or a file holding it or a whole end_auction response",
	}
	auctionIDFlag = cli.Uint64Flag{
		Name:  "auction-id",
		Usage: "expected auction id",
	}
	winnerFlag = cli.StringFlag{
		Name:  "winner",
		Usage: "expected winner address (omit for an auction that ended without bids)",
	}
	amountFlag = cli.StringFlag{
		Name:  "amount",
		Usage: "expected winning amount in whole units, e.g. 1.5",
	}
	sellerFlag = cli.StringFlag{
		Name:  "seller",
		Usage: "expected seller address",
	}
	assetFlag = cli.StringFlag{
		Name:  "asset",
		Usage: "expected settlement asset address",
	}
	collectionFlag = cli.StringFlag{
		Name:  "collection",
		Usage: "expected NFT collection address",
	}
	tokenIDFlag = cli.StringFlag{
		Name:  "token-id",
		Usage: "expected NFT token id",
	}
	pcrsFlag = cli.StringFlag{
		Name:  "pcrs",
		Value: validation.DefaultPCRConfigPath(),
		Usage: "known-good PCR sets",
	}
	formatFlag = cli.StringFlag{
		Name:  "format",
		Value: "text",
		Usage: "output format (text|json)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "receipt-validator"
	app.Usage = "validate an attested escrow settlement receipt"
	app.Flags = []cli.Flag{
		receiptFlag,
		auctionIDFlag,
		winnerFlag,
		amountFlag,
		sellerFlag,
		assetFlag,
		collectionFlag,
		tokenIDFlag,
		pcrsFlag,
		formatFlag,
	}
	app.Action = validateAction

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func validateAction(ctx *cli.Context) error {
	if !ctx.IsSet(receiptFlag.Name) || !ctx.IsSet(auctionIDFlag.Name) {
		cli.ShowAppHelp(ctx)
		return cli.NewExitError("Error: --receipt and --auction-id are required", 2)
	}

	receipt, err := readReceipt(ctx.String(receiptFlag.Name))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("Error reading receipt: %v", err), 2)
	}
	knownPCRs, err := validation.LoadPCRsFromFile(ctx.String(pcrsFlag.Name))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("Error loading PCRs: %v", err), 2)
	}

	result, err := validation.ValidateSettlementAttestation(&validation.SettlementValidationInput{
		AttestationCOSE: receipt,
		AuctionID:       ctx.Uint64(auctionIDFlag.Name),
		Winner:          ctx.String(winnerFlag.Name),
		Amount:          ctx.String(amountFlag.Name),
		Seller:          ctx.String(sellerFlag.Name),
		Asset:           ctx.String(assetFlag.Name),
		Collection:      ctx.String(collectionFlag.Name),
		TokenID:         ctx.String(tokenIDFlag.Name),
		KnownPCRs:       knownPCRs,
	})
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("Validation error: %v", err), 2)
	}

	if ctx.String(formatFlag.Name) == "json" {
		if err := outputJSON(result); err != nil {
			return cli.NewExitError(fmt.Sprintf("Error marshaling JSON: %v", err), 2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		return cli.NewExitError("", 1)
	}
	return nil
}

// readReceipt accepts a receipt inline or in a file, in any encoding
// enclaveapi.ParseAttestation understands, or a file holding a whole
// end_auction response.
func readReceipt(input string) (enclaveapi.AttestationCOSEBase64, error) {
	data := []byte(input)
	if fileData, err := os.ReadFile(input); err == nil {
		data = fileData
	}

	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var resp enclaveapi.Response
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return "", fmt.Errorf("parse end_auction response: %w", err)
		}
		switch {
		case resp.Receipt != "":
			text = resp.Receipt.String()
		case resp.ReceiptGzip != "":
			text = resp.ReceiptGzip.String()
		default:
			return "", fmt.Errorf("response carries no receipt: %s", resp.Message)
		}
	}

	cose, err := enclaveapi.ParseAttestation(text)
	if err != nil {
		return "", err
	}
	return cose.EncodeBase64(), nil
}

func outputText(result *validation.SettlementValidationResult) {
	fmt.Println("Escrow Settlement Receipt Validator")
	fmt.Println("===================================")
	fmt.Println()

	fmt.Println("Summary:")
	fmt.Printf("  PCRs Valid:              %v\n", result.PCRsValid)
	fmt.Printf("  Certificate Valid:       %v\n", result.CertificateValid)
	fmt.Printf("  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Printf("  Receipt Present:         %v\n", result.ReceiptPresent)
	fmt.Printf("  Settlement Hash Valid:   %v\n", result.HashValid)
	fmt.Printf("  Outcome Valid:           %v\n", result.OutcomeValid)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("===================================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.SettlementValidationResult) error {
	output := map[string]any{
		"valid":             result.IsValid(),
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"receipt_present":   result.ReceiptPresent,
		"hash_valid":        result.HashValid,
		"outcome_valid":     result.OutcomeValid,
		"details":           result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
