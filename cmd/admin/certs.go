package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamscao/certserver/internal/api/handlers"
	"github.com/adamscao/certserver/internal/models"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign one record per recipient of an event",
	Long: `Sign reads a batch file of the form {"event": {...}, "recipients": [...]},
signs and stores one record per recipient and prints the per-recipient results.`,
	RunE: signBatch,
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a record and seal it into a rendered PDF",
	RunE:  issueCertificate,
}

var verifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Verify a sealed certificate PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  verifyCertificate,
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Inspect stored certificates",
}

var certsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificates issued for an event",
	RunE:  listCertificates,
}

var (
	inputPath    string
	recordPath   string
	artifactPath string
	outputPath   string
	eventID      string
	listLimit    int
)

func init() {
	signCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Batch file (required)")
	signCmd.MarkFlagRequired("input")

	issueCmd.Flags().StringVarP(&recordPath, "record", "r", "", "Certificate record JSON file (required)")
	issueCmd.Flags().StringVarP(&artifactPath, "artifact", "a", "", "Rendered PDF (required)")
	issueCmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output path for the sealed PDF (required)")
	issueCmd.MarkFlagRequired("record")
	issueCmd.MarkFlagRequired("artifact")
	issueCmd.MarkFlagRequired("out")

	certsListCmd.Flags().StringVarP(&eventID, "event", "e", "", "Event ID (required)")
	certsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of certificates (0 for all)")
	certsListCmd.MarkFlagRequired("event")
	certsCmd.AddCommand(certsListCmd)
}

func signBatch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}
	var req handlers.BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to parse batch file: %w", err)
	}
	event, err := req.EventContext()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Issuer.SignBatch(ctx, event, req.Recipients)
	if err != nil {
		return err
	}

	if err := printJSON(cmd.OutOrStdout(), handlers.NewBatchResponse(results)); err != nil {
		return err
	}
	if n := results.Failed(); n > 0 {
		return fmt.Errorf("%d of %d records failed", n, len(results))
	}
	return nil
}

func issueCertificate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	var record models.CertificateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to parse record: %w", err)
	}
	rendered, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	issued, err := a.Issuer.Issue(ctx, record, rendered)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, issued.Artifact, 0o644); err != nil {
		return fmt.Errorf("failed to write sealed PDF: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Certificate issued\n")
	fmt.Fprintf(out, "ID:             %s\n", issued.Certificate.ID)
	fmt.Fprintf(out, "Student:        %s (%s)\n", record.Name, record.StudentID)
	fmt.Fprintf(out, "Event:          %s\n", record.EventID)
	fmt.Fprintf(out, "Content digest: %s\n", issued.Certificate.ContentDigest)
	fmt.Fprintf(out, "Written to:     %s\n", outputPath)
	return nil
}

func verifyCertificate(cmd *cobra.Command, args []string) error {
	pdf, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.Verifier.VerifyArtifact(ctx, pdf)
	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if !resp.IsValid {
		if resp.Details.Error != "" {
			return fmt.Errorf("certificate is not valid: %s", resp.Details.Error)
		}
		return fmt.Errorf("certificate is not valid")
	}
	return nil
}

func listCertificates(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	certs, err := a.Certs.ListByEvent(ctx, eventID, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(certs) == 0 {
		fmt.Fprintln(out, "No certificates found")
		return nil
	}

	fmt.Fprintf(out, "\nTotal certificates: %d\n\n", len(certs))
	fmt.Fprintf(out, "%-15s %-25s %-8s %-20s %s\n", "Student ID", "Name", "Sealed", "Signed", "ID")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------------")
	for _, cert := range certs {
		sealed := "No"
		if cert.ContentDigest != "" {
			sealed = "Yes"
		}
		fmt.Fprintf(out, "%-15s %-25s %-8s %-20s %s\n",
			cert.Record.StudentID,
			cert.Record.Name,
			sealed,
			cert.SignedAt.Format("2006-01-02 15:04:05"),
			cert.ID,
		)
	}
	return nil
}
