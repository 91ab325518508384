// Package domain holds the card model: the normalized submission, the avatar
// reference and the declarative layout handed to a rasterizer.
// Keep this package free of transport (HTTP) and infrastructure (Redis/Chrome) concerns.
package domain
