package config

// Markers holds the names of the sentinel files that prove a directory
// really is the intended source or destination. These files are only
// ever read, never written.
type Markers struct {
	Source      string `koanf:"source"`
	Destination string `koanf:"destination"`
}

// Backup holds defaults for the backup session itself. CLI flags
// override every field here.
type Backup struct {
	// Keep is the default keep-count. 0 = unlimited.
	Keep int `koanf:"keep"`
	// DstFQDN toggles the FQDN subfolder under the destination root.
	DstFQDN bool `koanf:"dst_fqdn"`
	// Separator splits id#path tokens. Must not appear inside
	// identifiers or paths.
	Separator string `koanf:"separator"`
	// StagingDir is the name of the partial-backup directory inside
	// the backup set.
	StagingDir string `koanf:"staging_dir"`
}

// Rsync holds settings for the external synchronization tool.
type Rsync struct {
	Binary string `koanf:"binary"`
}

// Logging holds log placement settings. An empty Dir means the XDG
// state directory.
type Logging struct {
	Dir     string `koanf:"dir"`
	Summary string `koanf:"summary"`
}

// Config is the root configuration for incbak.
type Config struct {
	Markers Markers `koanf:"markers"`
	Backup  Backup  `koanf:"backup"`
	Rsync   Rsync   `koanf:"rsync"`
	Logging Logging `koanf:"logging"`
}

// Default returns the built-in configuration, identical to the
// embedded defaults file.
func Default() *Config {
	return &Config{
		Markers: Markers{
			Source:      ".backup_src_check",
			Destination: ".backup_dst_check",
		},
		Backup: Backup{
			Keep:       0,
			DstFQDN:    true,
			Separator:  "#",
			StagingDir: "tmp_partial_backup",
		},
		Rsync: Rsync{
			Binary: "rsync",
		},
		Logging: Logging{
			Dir:     "",
			Summary: "",
		},
	}
}
