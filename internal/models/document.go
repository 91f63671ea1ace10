package models

// DocState is the lifecycle state of an engineering model document.
type DocState string

const (
	DocClosed DocState = "closed"
	DocOpen   DocState = "open"
	DocDirty  DocState = "dirty" // in-memory mutations not yet saved
	DocSaved  DocState = "saved"
)
