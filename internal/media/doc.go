// Package media moves the whiteboard's video feed in and out of IVF files so
// a headless peer can both show and capture a camera stream.
package media
