package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/walink/internal/config"
	"github.com/foxzi/walink/internal/tls"
)

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "TLS certificate commands",
}

var tlsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show TLS certificate status",
	RunE:  runTLSStatus,
}

// Certificates closer than this to expiry are flagged
const renewWarning = 14 * 24 * time.Hour

func init() {
	tlsCmd.AddCommand(tlsStatusCmd)
}

func runTLSStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !cfg.HasTLS() {
		fmt.Fprintln(out, "TLS is disabled")
		return nil
	}

	if cfg.HasACME() {
		acme := cfg.Server.TLS.ACME
		fmt.Fprintln(out, "Mode: ACME (Let's Encrypt)")
		fmt.Fprintf(out, "Domains: %s\n", strings.Join(acme.Domains, ", "))
		fmt.Fprintf(out, "Cache: %s\n\n", acme.CacheDir)

		m := tls.NewACMEManager(acme.Email, acme.Domains, acme.CacheDir)
		certs := m.CachedCertificates(cmd.Context())
		if len(certs) == 0 {
			fmt.Fprintln(out, "No certificates cached yet; they are obtained on the first HTTPS request")
			return nil
		}
		for _, c := range certs {
			printCertificate(out, c)
		}
		return nil
	}

	fmt.Fprintln(out, "Mode: manual certificate")
	info, err := tls.ReadCertificateInfo(cfg.Server.TLS.CertFile)
	if err != nil {
		return err
	}
	printCertificate(out, *info)
	return nil
}

func printCertificate(out io.Writer, c tls.CertificateInfo) {
	status := "OK"
	if c.ExpiresWithin(renewWarning) {
		status = "EXPIRING"
	}
	fmt.Fprintf(out, "%s: %s\n", c.Domain, status)
	fmt.Fprintf(out, "  Issuer:    %s\n", c.Issuer)
	fmt.Fprintf(out, "  Valid:     %s - %s\n", c.NotBefore.Format("2006-01-02"), c.NotAfter.Format("2006-01-02"))
	fmt.Fprintf(out, "  Days left: %d\n", c.DaysLeft)
	if len(c.DNSNames) > 0 {
		fmt.Fprintf(out, "  DNS names: %s\n", strings.Join(c.DNSNames, ", "))
	}
}
