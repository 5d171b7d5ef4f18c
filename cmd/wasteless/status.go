package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/4xmen/wasteless/internal/store"
	"github.com/4xmen/wasteless/pkg/config"
)

type appStatus struct {
	GeneratedAt     time.Time
	Environment     string
	Port            string
	Datastore       string
	DatabasePath    string
	MediaBackend    string
	FileStoragePath string
	Stats           store.Stats
	DBSize          int64
	DBWALSize       int64
	DBSHMSize       int64
	UploadDirSize   int64
	UploadFileCount int64
	DBMetricsReady  bool
	DBWarning       string
	StorageWarnings []string
}

type statusOptions struct {
	JSON bool
}

func parseStatusArgs(args []string) (statusOptions, error) {
	opts := statusOptions{}
	for _, arg := range args {
		switch arg {
		case "--json", "-j":
			opts.JSON = true
		default:
			return opts, fmt.Errorf("unknown status flag: %s", arg)
		}
	}
	return opts, nil
}

func runStatus(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseStatusArgs(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := collectStatus(ctx, cfg)
	if opts.JSON {
		return printStatusJSON(out, status)
	}
	printStatus(out, status)
	return nil
}

func collectStatus(ctx context.Context, cfg *config.Config) appStatus {
	status := appStatus{
		GeneratedAt:     time.Now(),
		Environment:     cfg.Environment,
		Port:            cfg.Port,
		Datastore:       cfg.Datastore,
		DatabasePath:    cfg.DatabasePath,
		MediaBackend:    cfg.MediaBackend,
		FileStoragePath: cfg.FileStoragePath,
	}

	if cfg.Datastore == "sqlite" {
		if size, err := fileSize(cfg.DatabasePath); err == nil {
			status.DBSize = size
		} else {
			status.StorageWarnings = append(status.StorageWarnings, fmt.Sprintf("database file: %v", err))
		}
		if size, err := fileSize(cfg.DatabasePath + "-wal"); err == nil {
			status.DBWALSize = size
		}
		if size, err := fileSize(cfg.DatabasePath + "-shm"); err == nil {
			status.DBSHMSize = size
		}

		// Opening a missing file would create an empty database.
		if _, err := os.Stat(cfg.DatabasePath); err != nil {
			status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
			return status
		}
	}

	if cfg.MediaBackend == "local" {
		if bytes, files, err := dirUsage(cfg.FileStoragePath); err == nil {
			status.UploadDirSize = bytes
			status.UploadFileCount = files
		} else {
			status.StorageWarnings = append(status.StorageWarnings, fmt.Sprintf("upload dir: %v", err))
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}
	defer st.Close()

	if status.Stats, err = st.Stats(ctx, status.GeneratedAt.Add(-24*time.Hour)); err != nil {
		status.DBWarning = fmt.Sprintf("could not read database stats: %v", err)
		return status
	}

	status.DBMetricsReady = true
	return status
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

func dirUsage(root string) (int64, int64, error) {
	var totalBytes int64
	var totalFiles int64

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		totalBytes += info.Size()
		totalFiles++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return totalBytes, totalFiles, nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}

func printStatus(out io.Writer, status appStatus) {
	totalDB := status.DBSize + status.DBWALSize + status.DBSHMSize

	fmt.Fprintln(out, "Wasteless Status")
	fmt.Fprintf(out, "Generated at: %s\n", status.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Environment : %s\n", status.Environment)
	fmt.Fprintf(out, "Port        : %s\n", status.Port)
	fmt.Fprintf(out, "Datastore   : %s\n", status.Datastore)
	if status.Datastore == "sqlite" {
		fmt.Fprintf(out, "Database    : %s\n", status.DatabasePath)
	}
	fmt.Fprintf(out, "Media       : %s\n", status.MediaBackend)
	if status.MediaBackend == "local" {
		fmt.Fprintf(out, "Uploads dir : %s\n", status.FileStoragePath)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Data")
	if status.DBMetricsReady {
		fmt.Fprintf(out, "  Users              : %d\n", status.Stats.Users)
		fmt.Fprintf(out, "  Food posts         : %d\n", status.Stats.Listings)
		fmt.Fprintf(out, "  Available posts    : %d\n", status.Stats.AvailableListings)
		fmt.Fprintf(out, "  Messages           : %d\n", status.Stats.Messages)
		fmt.Fprintf(out, "  Unread messages    : %d\n", status.Stats.UnreadMessages)
		fmt.Fprintf(out, "  Messages last 24h  : %d\n", status.Stats.MessagesSince)
		fmt.Fprintf(out, "  Latest message at  : %s\n", formatTimestamp(status.Stats.LatestMessageAt))
	} else {
		fmt.Fprintln(out, "  Database metrics   : n/a")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Storage")
	if status.Datastore == "sqlite" {
		fmt.Fprintf(out, "  DB file       : %s\n", formatBytes(status.DBSize))
		fmt.Fprintf(out, "  DB WAL file   : %s\n", formatBytes(status.DBWALSize))
		fmt.Fprintf(out, "  DB SHM file   : %s\n", formatBytes(status.DBSHMSize))
		fmt.Fprintf(out, "  DB footprint  : %s\n", formatBytes(totalDB))
	}
	fmt.Fprintf(out, "  Upload files  : %d\n", status.UploadFileCount)
	fmt.Fprintf(out, "  Upload size   : %s\n", formatBytes(status.UploadDirSize))

	if status.DBWarning != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Warning: %s\n", status.DBWarning)
	}

	if len(status.StorageWarnings) > 0 {
		fmt.Fprintln(out)
		for _, warning := range status.StorageWarnings {
			fmt.Fprintf(out, "Warning: %s\n", warning)
		}
	}
}

func printStatusJSON(out io.Writer, status appStatus) error {
	totalDB := status.DBSize + status.DBWALSize + status.DBSHMSize
	payload := map[string]any{
		"generated_at":      status.GeneratedAt.Format(time.RFC3339),
		"environment":       status.Environment,
		"port":              status.Port,
		"datastore":         status.Datastore,
		"database_path":     status.DatabasePath,
		"media_backend":     status.MediaBackend,
		"file_storage_path": status.FileStoragePath,
		"metrics_ready":     status.DBMetricsReady,
		"metrics": map[string]any{
			"users":             status.Stats.Users,
			"food_posts":        status.Stats.Listings,
			"available_posts":   status.Stats.AvailableListings,
			"messages":          status.Stats.Messages,
			"unread_messages":   status.Stats.UnreadMessages,
			"messages_last_24h": status.Stats.MessagesSince,
			"latest_message_at": formatTimestamp(status.Stats.LatestMessageAt),
		},
		"storage": map[string]any{
			"db_file_bytes":      status.DBSize,
			"db_wal_bytes":       status.DBWALSize,
			"db_shm_bytes":       status.DBSHMSize,
			"db_footprint_bytes": totalDB,
			"upload_dir_bytes":   status.UploadDirSize,
			"upload_file_count":  status.UploadFileCount,
			"db_footprint_hum":   formatBytes(totalDB),
			"upload_dir_hum":     formatBytes(status.UploadDirSize),
		},
		"warnings": map[string]any{
			"database": status.DBWarning,
			"storage":  status.StorageWarnings,
		},
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
