package config

import "os"

// applyLocal fills the docker-compose defaults for APP_ENV=local: a MinIO
// container without TLS.
func applyLocal(cfg *Config) {
	if cfg.Artifact.Endpoint == "" {
		cfg.Artifact.Endpoint = "minio:9000"
	}
	if cfg.Artifact.AccessKey == "" {
		cfg.Artifact.AccessKey = "adflow"
	}
	if cfg.Artifact.SecretKey == "" {
		cfg.Artifact.SecretKey = "adflow123"
	}
	if _, ok := os.LookupEnv("ARTIFACT_S3_USE_SSL"); !ok {
		cfg.Artifact.UseSSL = false
	}
}
