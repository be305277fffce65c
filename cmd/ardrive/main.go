package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"ardrive-go/internal/app"
	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/config"
	"ardrive-go/internal/encryption"
	"ardrive-go/internal/engine"
	"ardrive-go/internal/ledger"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// passphraseEnv lets scripts supply the wallet passphrase without a prompt.
const passphraseEnv = "ARDRIVE_WALLET_PASSPHRASE"

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an ArDriveApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Sync", "CreateDrive").
// When withWallet is set the wallet is unlocked first.
func newApp(ctx context.Context, operation string, withWallet bool) (*app.ArDriveApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	opts := app.Options{Verbose: verbose}
	if withWallet {
		if opts.Wallet, err = unlockWallet(cfg); err != nil {
			return nil, err
		}
	}

	a, err := app.NewArDriveApp(ctx, cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func unlockWallet(cfg *config.Config) (*ledger.Wallet, error) {
	ks, err := encryption.NewKeystoreFromConfig(cfg.Keystore)
	if err != nil {
		return nil, err
	}
	if !ks.IsConfigured() {
		return nil, fmt.Errorf("no wallet configured: run 'ardrive config init'")
	}
	pass := os.Getenv(passphraseEnv)
	if pass == "" {
		if pass, err = readSecret("Wallet passphrase: "); err != nil {
			return nil, err
		}
	}
	w, err := ks.Unlock(pass)
	if err != nil {
		return nil, fmt.Errorf("unlocking wallet: %w", err)
	}
	return w, nil
}

// readSecret prompts on stderr and reads without echo. Piped input is read
// one line at a time.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(prompt, ": "), err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// newSecret prompts twice and requires both entries to match.
func newSecret(prompt string) (string, error) {
	first, err := readSecret(prompt + ": ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("passphrase must not be empty")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return first, nil
	}
	second, err := readSecret("Repeat " + strings.ToLower(prompt[:1]) + prompt[1:] + ": ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

// unlockIfPrivate asks for the passphrase of driveID when the drive is private.
func unlockIfPrivate(a *app.ArDriveApp, driveID string) error {
	drives, err := a.LocalDrives()
	if err != nil {
		return err
	}
	for _, d := range drives {
		if d.DriveID != driveID {
			continue
		}
		if !d.IsPrivate() {
			return nil
		}
		pass, err := readSecret(fmt.Sprintf("Passphrase for drive %s: ", d.Name))
		if err != nil {
			return err
		}
		return a.UnlockDrive(driveID, pass)
	}
	return fmt.Errorf("drive %s is not attached: run 'ardrive drive attach'", driveID)
}

var rootCmd = &cobra.Command{
	Use:          "ardrive",
	Short:        "Sync folders with drives on the permaweb",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a wallet and initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		if _, err := os.Stat(defaults["config_path"]); err == nil {
			return fmt.Errorf("config file already exists at %s", defaults["config_path"])
		}

		w, err := ledger.GenerateWallet(rand.Reader)
		if err != nil {
			return fmt.Errorf("generating wallet: %w", err)
		}
		cfg := config.NewConfig(w.Address(), defaults["base_dir"])
		cfg.SyncFolder = defaults["sync_folder"]

		pass, err := newSecret("Wallet passphrase")
		if err != nil {
			return err
		}
		ks, err := encryption.NewKeystoreFromConfig(cfg.Keystore)
		if err != nil {
			return err
		}
		if err := ks.Setup(w, pass); err != nil {
			return fmt.Errorf("storing wallet: %w", err)
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Wallet:      %s\n", w.Address())
		fmt.Printf("Sync folder: %s\n", cfg.SyncFolder)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Login:       %s\n", cfg.Login)
		fmt.Printf("Sync folder: %s\n", cfg.SyncFolder)
		fmt.Printf("Base dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log dir:     %s\n", cfg.LogDir)
		fmt.Printf("Gateway:     %s\n", cfg.Gateway.Primary)
		for _, b := range cfg.Gateway.Backup {
			fmt.Printf("  backup:    %s\n", b)
		}
		fmt.Printf("Bundling:    %t (max %d items)\n", cfg.Upload.Bundle, cfg.Upload.MaxBundleItems)
		return nil
	},
}

// wallet command
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect the wallet",
}

var walletAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the wallet address",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		ks, err := encryption.NewKeystoreFromConfig(cfg.Keystore)
		if err != nil {
			return err
		}
		addr, err := ks.Address()
		if err != nil {
			return fmt.Errorf("reading wallet address: %w", err)
		}
		fmt.Println(addr)
		return nil
	},
}

// drive command
var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Manage drives",
}

var driveCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		private, _ := cmd.Flags().GetBool("private")
		var pass string
		if private {
			var err error
			if pass, err = newSecret("Drive passphrase"); err != nil {
				return err
			}
		}

		a, err := newApp(cmd.Context(), "CreateDrive", true)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.CreateDrive(cmd.Context(), args[0], private, pass)
		if err != nil {
			return fmt.Errorf("creating drive: %w", err)
		}
		fmt.Printf("Created %s drive %s (%s)\n", d.Privacy, d.Name, d.DriveID)
		return nil
	},
}

var driveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drives",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")

		a, err := newApp(cmd.Context(), "ListDrives", remote)
		if err != nil {
			return err
		}
		defer a.Close()

		if remote {
			drives, err := a.ListDrives(cmd.Context())
			if err != nil {
				return err
			}
			if len(drives) == 0 {
				fmt.Println("No drives found.")
				return nil
			}
			for _, d := range drives {
				name := d.Name
				if name == "" {
					name = "(locked)"
				}
				fmt.Printf("%s  %-7s  %s\n", d.EntityID, d.Privacy, name)
			}
			return nil
		}

		drives, err := a.LocalDrives()
		if err != nil {
			return err
		}
		if len(drives) == 0 {
			fmt.Println("No drives attached.")
			return nil
		}
		for _, d := range drives {
			fmt.Printf("%s  %-7s  %-9s  %s\n", d.DriveID, d.Privacy, d.SyncStatus, d.Name)
		}
		return nil
	},
}

var driveAttachCmd = &cobra.Command{
	Use:   "attach DRIVE_ID",
	Short: "Attach an existing drive for syncing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		private, _ := cmd.Flags().GetBool("private")
		var pass string
		if private {
			var err error
			if pass, err = readSecret("Drive passphrase: "); err != nil {
				return err
			}
		}

		a, err := newApp(cmd.Context(), "AttachDrive", true)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.AttachDrive(cmd.Context(), args[0], pass)
		if err != nil {
			return fmt.Errorf("attaching drive: %w", err)
		}
		fmt.Printf("Attached drive %s (%s)\n", d.Name, d.DriveID)
		return nil
	},
}

var driveShareCmd = &cobra.Command{
	Use:   "share DRIVE_ID",
	Short: "Print the sharing link of a drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ShareDrive", false)
		if err != nil {
			return err
		}
		defer a.Close()

		link, err := a.ShareDrive(args[0])
		if err != nil {
			return err
		}
		fmt.Println(link)
		return nil
	},
}

// share command
var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share files",
}

var shareFileCmd = &cobra.Command{
	Use:   "file FILE_ID",
	Short: "Print the sharing link of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driveID, _ := cmd.Flags().GetString("drive")

		// Private links embed a key derived from the wallet.
		a, err := newApp(cmd.Context(), "ShareFile", driveID != "")
		if err != nil {
			return err
		}
		defer a.Close()

		if driveID != "" {
			if err := unlockIfPrivate(a, driveID); err != nil {
				return err
			}
		}
		link, err := a.ShareFile(args[0])
		if err != nil {
			return err
		}
		fmt.Println(link)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync DRIVE_ID",
	Short: "Pull remote changes and upload local ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Sync", true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfPrivate(a, args[0]); err != nil {
			return err
		}
		res, err := a.Sync(cmd.Context(), args[0])
		if res != nil {
			if res.Pull != nil {
				fmt.Printf("Pulled %d change(s) up to block %d\n", len(res.Pull.Changes), res.Pull.BlockHeight)
			}
			if res.Download != nil {
				fmt.Printf("Downloaded %d file(s), %d folder(s), moved %d\n", res.Download.Files, res.Download.Folders, res.Download.Moved)
			}
			if res.Upload != nil {
				printUpload(res.Upload)
			}
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload DRIVE_ID",
	Short: "Upload local changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Upload", true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfPrivate(a, args[0]); err != nil {
			return err
		}
		report, err := a.Upload(cmd.Context(), args[0])
		if report != nil {
			printUpload(report)
		}
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		return nil
	},
}

func printUpload(r *engine.UploadReport) {
	for _, id := range r.Resumed {
		fmt.Printf("Resumed upload %s\n", id)
	}
	fmt.Printf("Uploaded %d version(s) in %d transaction(s)\n", r.Submitted, r.Transactions)
	if r.Incomplete > 0 || r.Failed > 0 || r.Skipped > 0 {
		fmt.Printf("  incomplete %d, failed %d, skipped %d\n", r.Incomplete, r.Failed, r.Skipped)
	}
}

// confirm command
var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Check submitted transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Confirm", false)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Confirm(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Confirmed %d, pending %d, requeued %d\n", r.Confirmed, r.Pending, r.Requeued)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status DRIVE_ID",
	Short: "View drive sync status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Status", false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Drive %s (%s), last block %d\n", st.Drive.Name, st.Drive.DriveID, st.Drive.LastBlockHeight)
		fmt.Printf("  folders:    %d\n", st.Folders)
		fmt.Printf("  files:      %d\n", st.Files)
		fmt.Printf("  unsynced:   %d\n", st.Unsynced)
		fmt.Printf("  submitted:  %d\n", st.Submitted)
		fmt.Printf("  confirmed:  %d\n", st.Confirmed)
		fmt.Printf("  cloud only: %d\n", st.CloudOnly)
		fmt.Printf("  conflicts:  %d\n", st.Conflicts)
		if st.Unplaced > 0 {
			fmt.Printf("  unplaced:   %d\n", st.Unplaced)
		}
		return nil
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts DRIVE_ID",
	Short: "List versions that need a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Conflicts", false)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Conflicts(args[0])
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No conflicts.")
			return nil
		}
		for _, r := range recs {
			printRecord(r)
		}
		return nil
	},
}

func printRecord(r *ardrive.SyncRecord) {
	fmt.Printf("%s  %s  %s\n", r.EntityID, time.Unix(r.UnixTime, 0).Format("2006-01-02 15:04:05"), r.FilePath)
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History", false)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	walletCmd.AddCommand(walletAddressCmd)

	// drive subcommands
	driveCmd.AddCommand(driveCreateCmd)
	driveCreateCmd.Flags().Bool("private", false, "Encrypt the drive with a passphrase")
	driveCmd.AddCommand(driveListCmd)
	driveListCmd.Flags().Bool("remote", false, "List the drives the wallet owns on the network")
	driveCmd.AddCommand(driveAttachCmd)
	driveAttachCmd.Flags().Bool("private", false, "Prompt for the drive passphrase")
	driveCmd.AddCommand(driveShareCmd)

	shareCmd.AddCommand(shareFileCmd)
	shareFileCmd.Flags().String("drive", "", "Drive of the file; private drives are unlocked first")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
