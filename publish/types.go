package publish

type EntryResponse struct {
	Did       string `json:"did"`
	VersionId string `json:"versionId"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
