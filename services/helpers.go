package services

import (
	"fmt"
	"strings"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/storage"
)

func tournamentRoom(tournamentID int) string {
	return fmt.Sprintf("tournament_%d", tournamentID)
}

func populateMatchEvidenceURL(match *models.Match, uploader storage.FileUploader) {
	if match == nil || match.EvidenceKey == nil || *match.EvidenceKey == "" || uploader == nil {
		return
	}
	if url := uploader.GetPublicURL(*match.EvidenceKey); url != "" {
		match.EvidenceURL = &url
	}
}

func populateMatchListEvidenceURLs(matches []*models.Match, uploader storage.FileUploader) {
	for _, m := range matches {
		populateMatchEvidenceURL(m, uploader)
	}
}

func extensionForContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	default:
		parts := strings.Split(contentType, "/")
		if len(parts) == 2 && parts[0] == "image" && parts[1] != "" {
			return "." + strings.Split(parts[1], "+")[0], nil
		}
		return "", fmt.Errorf("unsupported evidence content type %q", contentType)
	}
}
