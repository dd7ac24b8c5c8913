package pages

// The templates speak the Xiino subset only: no CSS, no scripts, uppercase
// tags like the rewritten documents the client already sees.
const templates = `
{{define "about"}}<TITLE>About OpenXiino</TITLE><BODY BGCOLOR="#FFFFFF">
<H1>OpenXiino DataServer</H1>
<P>Version {{.Version}}</P>
<HR>
<H3>Configuration</H3>
<P>Max page size: {{.PageSizeKB}} KB<BR>
Max image size: {{.ImageSizeMB}} MB<BR>
Dithering: {{.Dither}}<BR>
HTTPS upgrade: {{if .Upgrade}}on{{else}}off{{end}}<BR>
Rate limit: {{.RatePerMin}} requests/minute</P>
<HR>
<P><A HREF="http://device.xiino">Device info</A> |
<A HREF="http://palette.xiino">Palette test</A></P>
</BODY>{{end}}

{{define "device"}}<TITLE>Device Info</TITLE><BODY BGCOLOR="#FFFFFF">
<H1>Your Device</H1>
<P>{{range $k, $v := .}}{{$k}}: {{$v}}<BR>{{end}}</P>
<P><A HREF="http://about.xiino">Back</A></P>
</BODY>{{end}}

{{define "palette"}}<TITLE>Palette Test</TITLE><BODY BGCOLOR="#FFFFFF">
<H1>Palette Test</H1>
<TABLE BORDER="1">
{{range .}}<TR><TD>{{.Index}}</TD><TD BGCOLOR="{{.Hex}}">&nbsp;&nbsp;&nbsp;</TD><TD>{{.Hex}}</TD></TR>
{{end}}</TABLE>
</BODY>{{end}}

{{define "error"}}<TITLE>{{.Title}}</TITLE><BODY BGCOLOR="#FFFFFF">
<H1>{{.Title}}</H1>
<P>{{.Message}}</P>
{{if .Detail}}<P><SMALL>{{.Detail}}</SMALL></P>{{end}}
<HR>
<P><A HREF="http://about.xiino">OpenXiino</A></P>
</BODY>{{end}}
`
