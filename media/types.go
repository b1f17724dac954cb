package media

type AssetType string

const (
	AssetTypeSnapshot AssetType = "snapshot" // unknown-person crops
	AssetTypeFace     AssetType = "face"     // reference crops kept at registration
	AssetTypeExport   AssetType = "export"   // CSV attendance exports
	AssetTypeUnknown  AssetType = "unknown"
)

const (
	SnapshotJpegQuality = 90
	JpegFileExtension   = ".jpg"
)
