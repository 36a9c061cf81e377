// tgctl verifies evidence export bundles offline: manifest hashes,
// signed manifest tokens, and raw artifact digests.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trustgate/pkg/digest"
	"trustgate/pkg/exportsig"
)

func main() {
	root := &cobra.Command{
		Use:           "tgctl",
		Short:         "offline verification for evidence export bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(manifestCmd(), exportCmd(), artifactCmd())
	if err := root.Execute(); err != nil {
		printSummary("FAIL", map[string]any{"reason": err.Error()})
		os.Exit(1)
	}
}

func manifestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "manifest", Short: "export manifest operations"}

	var manifestPath, wantHash string
	hash := &cobra.Command{
		Use:   "hash",
		Short: "compute the manifest hash of an ordered entry list",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readManifest(manifestPath)
			if err != nil {
				return err
			}
			printSummary("PASS", map[string]any{
				"manifest_hash": digest.ManifestHash(digest.SHA256(), entries),
				"entries":       len(entries),
			})
			return nil
		},
	}
	hash.Flags().StringVar(&manifestPath, "manifest", "", "path to manifest entries json")
	_ = hash.MarkFlagRequired("manifest")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "check a manifest hash against its entry list",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readManifest(manifestPath)
			if err != nil {
				return err
			}
			got := digest.ManifestHash(digest.SHA256(), entries)
			if got != strings.TrimSpace(wantHash) {
				return fmt.Errorf("manifest hash mismatch: computed %s", got)
			}
			printSummary("PASS", map[string]any{"manifest_hash": got, "entries": len(entries)})
			return nil
		},
	}
	verify.Flags().StringVar(&manifestPath, "manifest", "", "path to manifest entries json")
	verify.Flags().StringVar(&wantHash, "hash", "", "expected manifest hash")
	_ = verify.MarkFlagRequired("manifest")
	_ = verify.MarkFlagRequired("hash")

	cmd.AddCommand(hash, verify)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "export", Short: "signed export token operations"}

	var token, key, manifestPath string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "verify a signed export manifest token",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := exportsig.Verify(strings.TrimSpace(token), []byte(key))
			if err != nil {
				return err
			}
			if manifestPath != "" {
				entries, err := readManifest(manifestPath)
				if err != nil {
					return err
				}
				if got := digest.ManifestHash(digest.SHA256(), entries); got != claims.ManifestHash {
					return fmt.Errorf("manifest does not match token: computed %s, token says %s", got, claims.ManifestHash)
				}
			}
			printSummary("PASS", map[string]any{
				"tenant_id":     claims.TenantID,
				"bundle_uri":    claims.BundleURI,
				"manifest_hash": claims.ManifestHash,
				"exporter":      claims.Exporter,
				"artifact_ids":  claims.ArtifactIDs,
			})
			return nil
		},
	}
	verify.Flags().StringVar(&token, "token", "", "signed export manifest token")
	verify.Flags().StringVar(&key, "key", "", "signing key")
	verify.Flags().StringVar(&manifestPath, "manifest", "", "optional manifest entries json to cross-check")
	_ = verify.MarkFlagRequired("token")
	_ = verify.MarkFlagRequired("key")

	cmd.AddCommand(verify)
	return cmd
}

func artifactCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "artifact", Short: "artifact content operations"}

	var filePath, wantHash string
	hash := &cobra.Command{
		Use:   "hash",
		Short: "compute the content hash of a file, optionally checking it",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			got := digest.SHA256().Sum(data)
			if wantHash != "" && got != strings.TrimSpace(wantHash) {
				return fmt.Errorf("content hash mismatch: computed %s", got)
			}
			printSummary("PASS", map[string]any{"content_hash": got, "size_bytes": len(data)})
			return nil
		},
	}
	hash.Flags().StringVar(&filePath, "file", "", "path to artifact content")
	hash.Flags().StringVar(&wantHash, "hash", "", "expected content hash")
	_ = hash.MarkFlagRequired("file")

	cmd.AddCommand(hash)
	return cmd
}

func readManifest(path string) ([]digest.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []digest.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest has no entries")
	}
	return entries, nil
}

func printSummary(status string, fields map[string]any) {
	out := map[string]any{"status": status, "timestamp_utc": time.Now().UTC().Format(time.RFC3339)}
	for k, v := range fields {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}
