// Package form keeps in-progress form drafts in local storage and commits
// them after a quiet period.
//
// Every update is written to storage immediately, so a draft survives a
// restart. Committing is separate: the OnSave sink runs once the debounce
// window passes without another update, or when Save is called. A draft
// that fails validation is never committed; Save reports a ValidationError
// and the autosave path logs the messages and leaves the form dirty.
package form
