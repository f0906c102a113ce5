// Package upload stores image attachments on local disk under random names
// and deletes them again once the owning task has finished.
package upload
