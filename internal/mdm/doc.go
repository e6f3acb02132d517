// Package mdm is the external management channel: the opaque link to a
// device-management console that supplies remote configuration.
//
// The core only ever needs connect, disconnect, a connection check and the
// latest configuration document. Connection events are reported through a
// Handler. The MQTT implementation treats the retained message on
// <prefix>/device/<identity>/config as the configuration document.
package mdm
