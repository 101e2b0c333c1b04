package bounce

const multipartBounce = `From: Mail Delivery Subsystem <mailer-daemon@example.net>
To: sender@campaign.com
Subject: Undelivered Mail Returned to Sender
MIME-Version: 1.0
Content-Type: multipart/report; report-type=delivery-status; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Delivery to the following recipient failed permanently:
    <jane@example.com>
--inner
Content-Type: text/html; charset=utf-8

<p>html <b>html-only@example.com</b></p>
--inner--

--outer
Content-Type: message/delivery-status

Reporting-MTA: dns; mx.example.net

Final-Recipient: rfc822; status-only@example.com
Action: failed
--outer
Content-Type: text/plain
Content-Transfer-Encoding: base64

T3JpZ2luYWwtUmVjaXBpZW50OiByZmM4MjI7IGpvZUBleGFtcGxlLm9yZwo=
--outer--
`

const corruptSecondPart = `From: postmaster@example.net
Subject: Delivery failure
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: text/plain

RCPT TO:<first@example.com>
--b1
Content-Type: text/plain
Content-Transfer-Encoding: base64

@@@@ this is not base64 !!!!
--b1--
`

const singlePartBounce = "From: postmaster@example.net\r\n" +
	"Subject: failure notice\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"The following address(es) failed:\r\n" +
	"\r\n" +
	"[Carol@Example.org]\r\n"

const nestedOriginalMessage = `From: MAILER-DAEMON@mx.example.net
Subject: Returned mail
MIME-Version: 1.0
Content-Type: multipart/report; report-type=delivery-status; boundary="r1"

--r1
Content-Type: text/plain

Delivery failed.
--r1
Content-Type: message/rfc822

From: sender@campaign.com
To: nested@inner.org
Subject: Offer
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="a1"

--a1
Content-Type: text/plain

Please reply to <nested@inner.org>
--a1
Content-Type: text/html

<p>html-nested@inner.org</p>
--a1--

--r1--
`
