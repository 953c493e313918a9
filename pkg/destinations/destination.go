package destinations

type DstType int32

const (
	// LocalFile leaves export files in the output directory, optionally
	// copying them to a second directory.
	LocalFile DstType = iota
	// S3File uploads every export file to an S3 prefix.
	S3File
)

func (s DstType) String() string {
	switch s {
	case LocalFile:
		return "local"
	case S3File:
		return "s3"
	}

	return "unknown"
}
