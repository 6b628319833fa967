package versions

import (
	"log"

	"fieldkit/platform/schema"

	"gorm.io/gorm"
)

// Notes originally carried a single image_url column. This backfills the
// images list from it so readers only need to consult the list. The legacy
// column is kept for rollback safety.
func Migration_1_note_images(txn *gorm.DB) error {
	log.Println("backfilling note images from legacy image_url column")

	var notes []schema.Note
	if err := txn.Find(&notes, "image_url <> ''").Error; err != nil {
		return err
	}

	for _, note := range notes {
		if len(note.Images) > 0 {
			continue
		}
		images := []schema.NoteImage{{Url: note.ImageUrl}}
		if err := txn.Model(&schema.Note{}).Where("id = ?", note.Id).Update("images", images).Error; err != nil {
			return err
		}
	}

	log.Println("note image backfill complete")

	return nil
}
