package domain

// CompressedSuffix marks compressed artifacts on disk.
const CompressedSuffix = ".gz"

type Compressor interface {
	Compress(sourcePath, destPath string) error
	Decompress(sourcePath, destPath string) error
}
