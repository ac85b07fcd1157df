// Package convnet is a small inference runtime for feed-forward
// convolutional feature networks.
//
// A network is described by an Arch (layer shapes) and loaded from a weight
// file (see Encode and Decode) or generated with Random. Forward maps a CHW
// float32 image to the globally pooled activations of the last layer, which
// is the embedding used for visual matching. MobileNetV1 describes the
// reference 224×224 RGB to 1024-channel architecture.
//
// Only inference is supported; there is no training or gradient code.
package convnet
