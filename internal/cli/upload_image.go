package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/imagehost"
)

// UploadImageCommand uploads a local image to the image host and prints its URL.
type UploadImageCommand struct {
	FilePath     string
	BaseURL      string
	CloudName    string
	UploadPreset string
	Timeout      time.Duration

	Out io.Writer
}

func NewUploadImageCommand() *UploadImageCommand {
	return &UploadImageCommand{Out: os.Stdout}
}

func (cmd *UploadImageCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("upload-image", flag.ContinueOnError)

	fs.StringVar(&cmd.FilePath, "file", "", "Path to the image to upload (required)")
	fs.StringVar(&cmd.BaseURL, "base-url", envOr("CLOUDINARY_BASE_URL", "https://api.cloudinary.com"), "Image host API root")
	fs.StringVar(&cmd.CloudName, "cloud", os.Getenv("CLOUDINARY_CLOUD_NAME"), "Image host account identifier")
	fs.StringVar(&cmd.UploadPreset, "preset", os.Getenv("CLOUDINARY_UPLOAD_PRESET"), "Unsigned upload preset")
	fs.DurationVar(&cmd.Timeout, "timeout", time.Minute, "Upload timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s upload-image -file <path> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Upload a thumbnail to the image host and print the hosted URL.\n")
		fmt.Fprintf(os.Stderr, "The account and preset default to CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.FilePath == "" {
		return fmt.Errorf("required flag -file not provided")
	}
	return nil
}

func (cmd *UploadImageCommand) Run() error {
	f, err := os.Open(cmd.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	client := imagehost.NewClient(config.ImageHost{
		BaseURL:      cmd.BaseURL,
		CloudName:    cmd.CloudName,
		UploadPreset: cmd.UploadPreset,
		Timeout:      cmd.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	res, err := client.Upload(ctx, filepath.Base(cmd.FilePath), f)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	fmt.Fprintf(cmd.Out, "%s\n", res.SecureURL)
	return nil
}
