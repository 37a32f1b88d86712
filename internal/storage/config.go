package storage

// MinIOConfig holds MinIO connection configuration for the optional
// object-storage bundle source (BUNDLE_SOURCE=minio).
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

