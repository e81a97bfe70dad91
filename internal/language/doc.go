// Package language normalizes the transcription language setting.
//
// Operators may write an ISO 639-1 code, an ISO 639-2 code or the English
// name of the language; config stores the two-letter form and the
// transcription prompt names the language in words.
package language
