// Package android drives an Android device from a native daemon through the
// stock shell tools: the activity manager (am) for launches and settings
// navigation, dumpsys for permission and power-exemption queries, and
// getprop for the platform version.
//
// All commands go through a Runner so the parsing can be tested without a
// device.
package android
