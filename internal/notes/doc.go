// Package notes turns a finished transcription into vault files: a
// timestamped folder holding the recording and its note, plus a back-link
// in the day's daily note.
package notes
