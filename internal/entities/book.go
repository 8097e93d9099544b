package entities

import "encoding/json"

// Book is a catalog record as served by the remote Book API.
// The API owns the identifier; the front end never invents one.
type Book struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publicationYear"`
	ISBN            string `json:"isbn"`
	Description     string `json:"description,omitempty"`
	Thumbnail       string `json:"thumbnail,omitempty"`
}

// BookInput is the request body for create and update calls.
type BookInput struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publicationYear"`
	ISBN            string `json:"isbn"`
	Description     string `json:"description"`
	Thumbnail       string `json:"thumbnail"`
}

// UnmarshalJSON accepts both "id" and the legacy Mongo-style "_id" key.
func (b *Book) UnmarshalJSON(data []byte) error {
	type plain Book
	var aux struct {
		plain
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = Book(aux.plain)
	if b.ID == "" {
		b.ID = aux.LegacyID
	}
	return nil
}

// HasThumbnail reports whether the book carries a cover image URL.
func (b Book) HasThumbnail() bool {
	return b.Thumbnail != ""
}
