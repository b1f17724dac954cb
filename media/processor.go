package media

import (
	"fmt"
	"image"
	"io"
	"log"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// Processor crops frames and hands the encoded results to a Store.
type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// SnapshotFilename names an unknown-person crop after its capture time. The
// short random suffix keeps simultaneous captures on several feeds apart.
func SnapshotFilename(at time.Time) string {
	micros := at.Nanosecond() / int(time.Microsecond)
	return fmt.Sprintf("unknown_%s_%06d_%s%s", at.Format("20060102_150405"), micros, uuid.NewString()[:8], JpegFileExtension)
}

// SaveSnapshot crops region out of frame and stores it as a JPEG snapshot.
// region must already lie inside the frame bounds.
func (p *Processor) SaveSnapshot(frame image.Image, region image.Rectangle, at time.Time) (string, error) {
	if region.Empty() {
		return "", fmt.Errorf("empty snapshot region %v", region)
	}
	crop := imaging.Crop(frame, region)

	relPath, err := p.store.Save(AssetTypeSnapshot, SnapshotFilename(at), encodeJPEG(crop, SnapshotJpegQuality))
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot via store: %w", err)
	}
	return relPath, nil
}

// SaveFaceCrop stores the reference crop of a newly registered person.
func (p *Processor) SaveFaceCrop(img image.Image, region image.Rectangle, personID string) (string, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return "", fmt.Errorf("face region %v outside image", region)
	}
	crop := imaging.Crop(img, region)

	filename := fmt.Sprintf("%s_%s%s", personID, uuid.NewString()[:8], JpegFileExtension)
	relPath, err := p.store.Save(AssetTypeFace, filename, encodeJPEG(crop, SnapshotJpegQuality))
	if err != nil {
		return "", fmt.Errorf("failed to save face crop via store: %w", err)
	}
	log.Printf("processor: Saved reference face for %s at %s", personID, relPath)
	return relPath, nil
}

// encodeJPEG streams the encoded image so Store.Save can copy it without an
// intermediate buffer.
func encodeJPEG(img image.Image, quality int) io.Reader {
	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, img, imaging.JPEG, imaging.JPEGQuality(quality))
		if err != nil {
			log.Printf("processor: Failed to encode JPEG: %v", err)
			writer.CloseWithError(fmt.Errorf("jpeg encoding failed: %w", err))
			return
		}
		writer.Close()
	}()
	return reader
}
